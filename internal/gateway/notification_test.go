package gateway

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification_JSON(t *testing.T) {
	body := `{"referenceCode":"DON-123","status":"approved","token":"abc","kind":"donation","amount":5000,"currency":"cop"}`
	r := httptest.NewRequest(http.MethodPost, "/webhooks/payu", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	n, err := ParseNotification(r)
	require.NoError(t, err)
	assert.Equal(t, "DON-123", n.ReferenceCode)
	assert.True(t, n.Approved())
	assert.Equal(t, domain.TxKindDonation, n.Kind)
	assert.Equal(t, "5000", n.Amount.String())
	assert.Equal(t, "COP", n.Currency)
}

func TestParseNotification_FormWithAliases(t *testing.T) {
	form := url.Values{
		"referencia":       {"MEM-9"},
		"transactionState": {"DECLINED"},
		"firma":            {"abc"},
		"tipo":             {"membresia"},
		"monto":            {"10000.00"},
		"moneda":           {"COP"},
	}
	r := httptest.NewRequest(http.MethodPost, "/webhooks/payu", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	n, err := ParseNotification(r)
	require.NoError(t, err)
	assert.Equal(t, "MEM-9", n.ReferenceCode)
	assert.False(t, n.Approved())
	assert.Equal(t, domain.TxKindMembership, n.Kind)
	assert.Equal(t, "10000", n.Amount.String())
}

func TestParseNotification_NumericStateCodes(t *testing.T) {
	tests := []struct {
		state    string
		status   string
		approved bool
	}{
		{"4", StatusApproved, true},
		{"6", "DECLINED", false},
		{"5", "EXPIRED", false},
		{"7", "PENDING", false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			form := url.Values{
				"reference_sale": {"DON-1"},
				"state_pol":      {tt.state},
				"signature":      {"abc"},
			}
			r := httptest.NewRequest(http.MethodPost, "/webhooks/payu", strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			n, err := ParseNotification(r)
			require.NoError(t, err)
			assert.Equal(t, tt.status, n.Status)
			assert.Equal(t, tt.approved, n.Approved())
		})
	}
}

func TestParseNotification_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `{"referenceCode":`, "body"},
		{"missing reference", `{"status":"APPROVED","token":"x"}`, "referenceCode"},
		{"missing status", `{"referenceCode":"A","token":"x"}`, "status"},
		{"missing token", `{"referenceCode":"A","status":"APPROVED"}`, "token"},
		{"bad kind", `{"referenceCode":"A","status":"APPROVED","token":"x","kind":"gift"}`, "kind"},
		{"unknown state code", `{"referenceCode":"A","state_pol":"99","token":"x"}`, "status"},
		{"bad amount", `{"referenceCode":"A","status":"APPROVED","token":"x","amount":"lots"}`, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/webhooks/payu", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			_, err := ParseNotification(r)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
