// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/meter"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"

	"github.com/stretchr/testify/require"
)

// testNotification builds a notification for a 28 byte GET.
func testNotification(t *testing.T) *notify.Notification {
	t.Helper()
	res, err := meter.ParseResourcePath("/v1/AUTH_account/container/obj", "AUTH_")
	require.NoError(t, err)

	event := meter.BuildEvent(meter.EventInput{
		Resource:  res,
		Method:    "GET",
		Outcome:   "success",
		UserID:    "user",
		ProjectID: "project",
		BytesSent: 28,
		Time:      time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	})
	n := notify.NewNotification("zapaudit", event)
	n.Timestamp = time.Date(2025, 6, 1, 12, 30, 1, 0, time.UTC)
	return n
}
