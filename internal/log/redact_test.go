package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMasksSecretsAndPII(t *testing.T) {
	in := map[string]any{
		"password":      "hunter2",
		"newPassword":   "hunter3",
		"X-CSRF-Token":  "abc",
		"Authorization": "Bearer abc.def",
		"sid":           "0b7a",
		"email":         "alice@example.com",
		"phone_number":  "+1 (555) 123-4567",
		"name":          "Alice Liddell",
		"action":        "login",
		"count":         3,
		"nested": map[string]any{
			"api_key": "k",
			"emails":  []string{"bob@example.com", "carol@example.org"},
			"note":    "reach me at dave@example.com",
		},
	}
	out := Redact(in)

	assert.Equal(t, Redacted, out["password"])
	assert.Equal(t, Redacted, out["newPassword"])
	assert.Equal(t, Redacted, out["X-CSRF-Token"])
	assert.Equal(t, Redacted, out["Authorization"])
	assert.Equal(t, Redacted, out["sid"])
	assert.Equal(t, "a***@example.com", out["email"])
	assert.Equal(t, "***4567", out["phone_number"])
	assert.Equal(t, PII, out["name"])
	assert.Equal(t, "login", out["action"])
	assert.Equal(t, 3, out["count"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, Redacted, nested["api_key"])
	assert.Equal(t, []any{"b***@example.com", "c***@example.org"}, nested["emails"])
	assert.Equal(t, "reach me at d***@example.com", nested["note"])

	// input untouched
	assert.Equal(t, "hunter2", in["password"])
	assert.Equal(t, "alice@example.com", in["email"])
	assert.Equal(t, "k", in["nested"].(map[string]any)["api_key"])
}

func TestRedactNilAndDepth(t *testing.T) {
	assert.Nil(t, Redact(nil))
	assert.Nil(t, Redact(map[string]any{"token": nil})["token"])

	deep := map[string]any{}
	cur := deep
	for i := 0; i < 12; i++ {
		next := map[string]any{}
		cur["level"] = next
		cur = next
	}
	out := Redact(map[string]any{"root": deep})
	v := out["root"]
	for i := 0; i < 20; i++ {
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		v = m["level"]
	}
	assert.Equal(t, Truncated, v)
}

func TestClassifyExactShortKeys(t *testing.T) {
	assert.True(t, IsSensitiveKey("ssn"))
	assert.True(t, IsSensitiveKey("session_id"))
	assert.True(t, IsSensitiveKey("refresh-token"))
	for _, k := range []string{"SID", "card_cvv", "cvv2", "user_sid", "userSid", "customer_ssn", "ssn.last4"} {
		assert.True(t, IsSensitiveKey(k), k)
	}
	for _, k := range []string{"classname", "class_name", "business_name", "address_number", "inside", "sidebar", "resident", "pinned"} {
		assert.False(t, IsSensitiveKey(k), k)
	}
	assert.False(t, IsSensitiveKey(""))
}

func TestRedactShortSecretKeys(t *testing.T) {
	out := Redact(map[string]any{"card_cvv": "123", "user_sid": "sess-abc", "classname": "Widget"})
	assert.Equal(t, Redacted, out["card_cvv"])
	assert.Equal(t, Redacted, out["user_sid"])
	assert.Equal(t, "Widget", out["classname"])
}

func TestScrub(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Authorization: Bearer abc.DEF-123", "Authorization: Bearer " + Redacted},
		{"jwt eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig_part ok", "jwt " + Redacted + " ok"},
		{"postgres://app:s3cret@db:5432/app", "postgres://app:" + Redacted + "@db:5432/app"},
		{"GET /invite/accept?token=abcdef&x=1", "GET /invite/accept?token=" + Redacted + "&x=1"},
		{"user bob@example.com failed", "user b***@example.com failed"},
		{"host=db user=app password=s3cret dbname=app", "host=db user=app password=" + Redacted + " dbname=app"},
		{"host=db password='two words' sslmode=disable", "host=db password=" + Redacted + " sslmode=disable"},
		{"client_secret = abc123", "client_secret=" + Redacted},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Scrub(tc.in), tc.in)
	}
}

func TestMaskHelpers(t *testing.T) {
	assert.Equal(t, PII, MaskEmail("not-an-email"))
	assert.Equal(t, PII, MaskEmail("@example.com"))
	assert.Equal(t, "é***@example.com", MaskEmail("élise@example.com"))
	assert.Equal(t, "***", MaskPhone("12"))
	assert.Equal(t, "***0000", MaskPhone("555-0000"))
	assert.Equal(t, Redacted, redactValue("secret", errors.New("x"), 0))
}
