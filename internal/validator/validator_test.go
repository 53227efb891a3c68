package validator

import "testing"

func TestCheck(t *testing.T) {
	v := New()
	if !v.Valid() {
		t.Error("new validator should be valid")
	}

	v.Check(true, "title", "must be provided")
	if !v.Valid() {
		t.Error("passing check should not record an error")
	}

	v.Check(false, "title", "must be provided")
	v.Check(false, "title", "second message")
	if v.Valid() {
		t.Error("failing check should record an error")
	}
	if v.Errors["title"] != "must be provided" {
		t.Errorf("first error message should win; got %q", v.Errors["title"])
	}
}

func TestIn(t *testing.T) {
	if !In("physical", "physical", "digital") {
		t.Error("expected physical to be in list")
	}
	if In("audio", "physical", "digital") {
		t.Error("did not expect audio to be in list")
	}
}

func TestEmailRX(t *testing.T) {
	valid := []string{"ada@example.com", "n.okafor@library.edu.ng"}
	invalid := []string{"not-an-email", "missing@tld@x"}
	for _, email := range valid {
		if !Matches(email, EmailRX) {
			t.Errorf("expected %q to be valid", email)
		}
	}
	for _, email := range invalid {
		if Matches(email, EmailRX) {
			t.Errorf("expected %q to be invalid", email)
		}
	}
}
