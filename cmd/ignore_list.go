// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/LeeDigitalWorks/zapaudit/pkg/identity"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/meter"
	"github.com/LeeDigitalWorks/zapaudit/pkg/utils"

	"github.com/spf13/cobra"
)

var ignoreListCmd = &cobra.Command{
	Use:   "ignore-list",
	Short: "Print the resolved project ignore list",
	Long: `Resolve the configured ignore_projects entries the same way the proxy
does at startup and print one project id per line.`,
	Run: runIgnoreList,
}

func init() {
	rootCmd.AddCommand(ignoreListCmd)

	f := ignoreListCmd.Flags()
	f.String("ignore_projects", "", "Comma separated project ids or names")
	f.String("auth_url", "", "Keystone URL used to resolve project names")
}

func runIgnoreList(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("zapaudit", false)
	f := NewFlagLoader(cmd)

	cfg := meter.DefaultConfig()
	var idCfg identity.Config
	unmarshalSection("meter", &cfg)
	unmarshalSection("identity", &idCfg)
	if f.IsSet("ignore_projects") {
		cfg.IgnoreProjects = f.List("ignore_projects")
	}
	if f.IsSet("auth_url") {
		idCfg.AuthURL = f.String("auth_url")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ignore, err := loadIgnoreSet(ctx, cfg.IgnoreProjects, idCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build project ignore list")
	}
	printIgnoreSet(cmd.OutOrStdout(), ignore)
}

func printIgnoreSet(w io.Writer, ignore meter.IgnoreSet) {
	ids := ignore.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}
