package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

func TestValidator_MissingFields(t *testing.T) {
	err := New().Validate(&dto.CreateAuctionRequest{Title: "Pipes"})

	appErr := errorbank.From(err)
	require.Equal(t, errorbank.KindBadRequest, appErr.Kind())
	require.Equal(t, CodeMissingFields, appErr.Code())

	fields := appErr.Details()["fields"].(map[string]any)
	require.Equal(t, "required", fields["buyerId"])
	require.Equal(t, "required", fields["durationMinutes"])
	require.NotContains(t, fields, "title")
}

func TestValidator_InvalidValues(t *testing.T) {
	err := New().Validate(&dto.CreateAuctionRequest{
		Title:             "Pipes",
		BuyerID:           "b1",
		DurationMinutes:   10,
		MinDecrementValue: 5,
		InvitedSuppliers:  []string{"ok@example.com", "not-an-email"},
	})

	appErr := errorbank.From(err)
	require.Equal(t, CodeInvalidRequest, appErr.Code())
	fields := appErr.Details()["fields"].(map[string]any)
	require.Equal(t, "email", fields["invitedSuppliers[1]"])
}

func TestValidator_Valid(t *testing.T) {
	amount := 0.0
	require.NoError(t, New().Validate(&dto.SubmitBidRequest{AuctionID: "a", SupplierID: "s", Amount: &amount}))
	require.NoError(t, New().Validate(&dto.SupplierBidRequest{AuctionID: "a", SupplierID: "s"}))
}

func TestValidator_EmptyInviteListIsMissing(t *testing.T) {
	for name, invites := range map[string][]string{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			err := New().Validate(&dto.CreateAuctionRequest{
				Title:             "Pipes",
				BuyerID:           "b1",
				DurationMinutes:   10,
				MinDecrementValue: 5,
				InvitedSuppliers:  invites,
			})

			appErr := errorbank.From(err)
			require.Equal(t, CodeMissingFields, appErr.Code())
			fields := appErr.Details()["fields"].(map[string]any)
			require.Contains(t, fields, "invitedSuppliers")
		})
	}
}
