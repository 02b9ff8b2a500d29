package repofake_test

import (
	"context"
	"testing"
	"time"

	"github.com/qrmenu/menu-relay/audit"
	"github.com/qrmenu/menu-relay/audit/repofake"
	"github.com/stretchr/testify/require"
)

func TestFakeAuditLog(t *testing.T) {
	ctx := context.Background()
	l := repofake.NewFakeAuditLog()
	now := time.Now()

	require.NoError(t, l.Append(ctx, audit.Record{IdentityID: "a", Action: audit.ActionCredentialView, Timestamp: now}))
	require.NoError(t, l.Append(ctx, audit.Record{IdentityID: "b", Action: audit.ActionCredentialView, Timestamp: now}))
	require.NoError(t, l.Append(ctx, audit.Record{IdentityID: "a", Action: audit.ActionCredentialView, Timestamp: now.Add(time.Second)}))

	records, err := l.ListRecent(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, now.Add(time.Second), records[0].Timestamp)
	require.NotEmpty(t, records[0].ID)

	all, err := l.ListRecent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
