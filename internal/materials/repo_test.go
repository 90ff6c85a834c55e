package materials

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneman/oneman-backend/pkg/db/dbtest"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
)

func TestTruncateReasonKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	// 'é' is two bytes, so byte 1024 falls inside a rune
	long := "x" + strings.Repeat("é", 600)
	got := truncateReason(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxReasonBytes)
	assert.Equal(t, maxReasonBytes-1, len(got))

	ascii := strings.Repeat("a", 2000)
	assert.Len(t, truncateReason(ascii), maxReasonBytes)
}

func TestMarkTransferFailedStoresValidReason(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	row := &models.MaterialTransfer{
		SourceGroupID: uuid.New(),
		SourceKind:    enums.GroupKindStore,
		DestGroupID:   uuid.New(),
		DestKind:      enums.GroupKindSite,
		Name:          "Valves",
		Unit:          "units",
		Amount:        decimal.NewFromInt(3),
		ActorID:       "u1",
		Status:        enums.TransferStatusPending,
	}
	require.NoError(t, repo.CreateTransfer(ctx, nil, row))

	reason := "स्टॉक कम है: " + strings.Repeat("गैस पाइप ", 200)
	require.NoError(t, repo.MarkTransferFailed(ctx, row.ID, reason))

	var stored models.MaterialTransfer
	require.NoError(t, conn.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, enums.TransferStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.True(t, utf8.ValidString(*stored.FailureReason))
	assert.LessOrEqual(t, len(*stored.FailureReason), maxReasonBytes)
	assert.True(t, strings.HasPrefix(reason, *stored.FailureReason))
}
