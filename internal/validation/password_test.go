package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type validationCase struct {
	name    string
	input   string
	wantErr string
}

func runCases(t *testing.T, fn func(string) error, cases []validationCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fn(tc.input)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	runCases(t, ValidatePassword, []validationCase{
		{"accepted", "Bumper#Dent2024", ""},
		{"min length", "Hood!Scuff99", ""},
		{"max length", "K" + strings.Repeat("m", maxPasswordLen-3) + "7?", ""},
		{"hangul counts as letters", "카키Passw0rd!!", ""},
		{"short", "Tr1m!", "at least 12"},
		{"long", "K" + strings.Repeat("m", maxPasswordLen-2) + "7?", "must not exceed"},
		{"no uppercase", "fender!bender42", "uppercase"},
		{"no lowercase", "FENDER!BENDER42", "lowercase"},
		{"no digit", "Fender!Bender!!", "digit"},
		{"no special", "FenderBender4242", "special"},
	})
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	runCases(t, ValidateUsername, []validationCase{
		{"accepted", "dent_doctor-7", ""},
		{"min length", "kia", ""},
		{"max length", strings.Repeat("z", maxUsernameLen), ""},
		{"short", "ab", "at least 3"},
		{"long", strings.Repeat("z", maxUsernameLen+1), "must not exceed"},
		{"space", "dent doctor", "can only contain"},
		{"dot", "dent.doctor", "can only contain"},
		{"leading hyphen", "-mechanic", "cannot start or end"},
		{"trailing underscore", "mechanic_", "cannot start or end"},
	})
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	// 64 local + "@" + 185 domain + ".com" is exactly the limit.
	longest := strings.Repeat("a", 64) + "@" + strings.Repeat("b", 185) + ".com"
	runCases(t, ValidateEmail, []validationCase{
		{"accepted", "owner+car@carkey.co.kr", ""},
		{"at limit", longest, ""},
		{"over limit", "a" + longest, "must not exceed"},
		{"no at", "carkey.local", "invalid email"},
		{"no domain", "owner@", "invalid email"},
		{"double at", "owner@@carkey.local", "invalid email"},
		{"single letter tld", "owner@carkey.x", "invalid email"},
	})
}
