package ai_test

import (
	"context"
	"encoding/json"
	"testing"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_AcceptsNumericStrings(t *testing.T) {
	tests := []struct {
		name string
		args string
		want string
	}{
		{"plain", `{"customerName":"Amy","amount":"500"}`, "500"},
		{"currency formatted", `{"customerName":"Amy","amount":" $1,200.50 "}`, "1200.5"},
		{"number", `{"customerName":"Amy","amount":75.25}`, "75.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := ai.NewInvoiceTools(newStubService())
			res := reg.Execute(context.Background(), ai.ToolCreate, json.RawMessage(tt.args))
			require.False(t, res.Failed(), res.Error)
			require.NotNil(t, res.Invoice)
			assert.Equal(t, tt.want, res.Invoice.TotalAmount.String())
		})
	}
}

func TestExecute_MalformedArgumentsNameTheField(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
		want string
	}{
		{"word for amount", ai.ToolCreate, `{"customerName":"Amy","amount":"lots"}`, "validation failed: invalid value for amount"},
		{"object for name", ai.ToolCreate, `{"customerName":{"first":"Amy"},"amount":5}`, "validation failed: invalid value for customerName"},
		{"string balance repaired, bad amount reported", ai.ToolUpdate, `{"invoiceId":"1037","balance":"0","amount":true}`, "validation failed: invalid value for amount"},
		{"truncated", ai.ToolGet, `{"invoiceId":`, "validation failed: arguments are not valid JSON"},
		{"not an object", ai.ToolGet, `"1037"`, "validation failed: malformed arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			res := ai.NewInvoiceTools(svc).Execute(context.Background(), tt.tool, json.RawMessage(tt.args))
			assert.Equal(t, core.KindValidation, res.Kind)
			assert.Equal(t, tt.want, res.Error)
			assert.NotContains(t, res.Error, "json:")
			assert.Empty(t, svc.calls, "nothing runs on undecodable arguments")
		})
	}
}
