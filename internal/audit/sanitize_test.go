package audit

import (
	"reflect"
	"testing"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"Password", true},
		{"api_key", true},
		{"apiKey", true},
		{"API-Key", true},
		{"refresh_token", true},
		{"two_factor_secret", true},
		{"email", false},
		{"username", false},
		{"passwordHint", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSanitize_RedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"email":    "maria@example.com",
		"password": "hunter2",
		"profile": map[string]any{
			"api_key": "sk-12345",
			"name":    "Maria",
		},
		"tokens": []any{
			map[string]any{"access_token": "abc", "scope": "read"},
		},
	}

	got, ok := Sanitize(in).(map[string]any)
	if !ok {
		t.Fatalf("Sanitize() returned %T, want map[string]any", Sanitize(in))
	}

	if got["password"] != RedactedMarker {
		t.Errorf("password = %v, want %q", got["password"], RedactedMarker)
	}
	if got["email"] != "maria@example.com" {
		t.Errorf("email = %v, want original value", got["email"])
	}

	profile := got["profile"].(map[string]any)
	if profile["api_key"] != RedactedMarker {
		t.Errorf("profile.api_key = %v, want %q", profile["api_key"], RedactedMarker)
	}
	if profile["name"] != "Maria" {
		t.Errorf("profile.name = %v, want Maria", profile["name"])
	}

	token := got["tokens"].([]any)[0].(map[string]any)
	if token["access_token"] != RedactedMarker {
		t.Errorf("tokens[0].access_token = %v, want %q", token["access_token"], RedactedMarker)
	}
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"password": "hunter2",
		"nested":   map[string]any{"secret": "s3cr3t"},
	}

	Sanitize(in)

	if in["password"] != "hunter2" {
		t.Errorf("input password mutated to %v", in["password"])
	}
	if in["nested"].(map[string]any)["secret"] != "s3cr3t" {
		t.Error("nested input mutated")
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	in := map[string]any{"password": "hunter2", "name": "Maria"}

	once := Sanitize(in)
	twice := Sanitize(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Sanitize(Sanitize(x)) = %v, want %v", twice, once)
	}
}

func TestSanitizeDepth_BoundsRecursion(t *testing.T) {
	in := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}

	got := SanitizeDepth(in, 2).(map[string]any)
	inner := got["a"].(map[string]any)
	if inner["b"] != MaxDepthMarker {
		t.Errorf("depth-exceeded node = %v, want %q", inner["b"], MaxDepthMarker)
	}
}

func TestSanitize_StringMap(t *testing.T) {
	in := map[string]string{"token": "abc", "plan": "pro"}

	got := Sanitize(in).(map[string]any)
	if got["token"] != RedactedMarker {
		t.Errorf("token = %v, want %q", got["token"], RedactedMarker)
	}
	if got["plan"] != "pro" {
		t.Errorf("plan = %v, want pro", got["plan"])
	}
}

func TestSanitize_Scalars(t *testing.T) {
	for _, v := range []any{nil, "text", 42, 3.14, true} {
		if got := Sanitize(v); got != v {
			t.Errorf("Sanitize(%v) = %v, want unchanged", v, got)
		}
	}
}
