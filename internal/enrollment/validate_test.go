package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateForm(t *testing.T) {
	full := JoinForm{Name: "Asha", Phone: "9876543210", RollNumber: "12", Gender: "female", TransactionID: "TX1"}
	v := newValidator()

	tests := []struct {
		name       string
		form       JoinForm
		screenshot bool
		wantMsg    string
		wantFields []string
	}{
		{name: "valid", form: full, screenshot: true},
		{name: "missing beats screenshot and phone", form: JoinForm{Phone: "12"}, wantMsg: msgRequired,
			wantFields: []string{"name", "rollNumber", "gender", "transactionId", "phone", "screenshot"}},
		{name: "screenshot beats phone", form: func() JoinForm { f := full; f.Phone = "123"; return f }(), wantMsg: msgScreenshot,
			wantFields: []string{"phone", "screenshot"}},
		{name: "phone letters", form: func() JoinForm { f := full; f.Phone = "98765abcde"; return f }(), screenshot: true, wantMsg: msgPhone,
			wantFields: []string{"phone"}},
		{name: "phone too long", form: func() JoinForm { f := full; f.Phone = "98765432100"; return f }(), screenshot: true, wantMsg: msgPhone},
		{name: "whitespace only is missing", form: func() JoinForm { f := full; f.Gender = "   "; return f.trimmed() }(), screenshot: true, wantMsg: msgRequired,
			wantFields: []string{"gender"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateForm(v, tt.form, tt.screenshot)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantMsg, ve.Message)
			for _, f := range tt.wantFields {
				assert.Contains(t, ve.Fields, f)
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusApproved.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, Status("cancelled").Valid())
}
