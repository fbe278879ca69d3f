package domain

import (
	"errors"
	"testing"
)

func validCase() Case {
	return Case{
		Profile:      "/data/profiles/P01.csv",
		Evidence:     "/data/evidence/E07.csv",
		Contributors: 2,
		Deducible:    true,
		Quantity:     500,
		Theta:        0.03,
	}
}

func TestCase_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Case)
		wantErr bool
	}{
		{"valid", func(c *Case) {}, false},
		{"missing profile", func(c *Case) { c.Profile = " " }, true},
		{"missing evidence", func(c *Case) { c.Evidence = "" }, true},
		{"zero contributors", func(c *Case) { c.Contributors = 0 }, true},
		{"zero quantity", func(c *Case) { c.Quantity = 0 }, true},
		{"negative theta", func(c *Case) { c.Theta = -0.1 }, true},
		{"zero theta", func(c *Case) { c.Theta = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCase()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCase) {
				t.Errorf("Validate() error = %v, want ErrInvalidCase", err)
			}
		})
	}
}

func TestCase_Name(t *testing.T) {
	c := validCase()
	want := "C_P01.E_E07.Q_500.D.N_2.T_0.03"
	if got := c.Name(); got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}

	c.Deducible = false
	c.Quantity = 62.5
	want = "C_P01.E_E07.Q_62.5.ND.N_2.T_0.03"
	if got := c.Name(); got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestCase_State(t *testing.T) {
	c := validCase()
	if !c.Claimable() {
		t.Error("fresh case should be claimable")
	}

	c.Claimant = "worker-1"
	if c.Claimable() || !c.Claimed() || c.Finished() {
		t.Error("claimed case should be claimed, unfinished and not claimable")
	}

	c.Result = Result{"LR": 1.5}
	if c.Claimable() || !c.Finished() {
		t.Error("resulted case should be finished and not claimable")
	}

	c.Claimant = ""
	if c.Claimable() {
		t.Error("resulted case must stay unclaimable without a claimant")
	}
}

func TestCounts(t *testing.T) {
	c := Counts{Total: 8, InProgress: 2, Finished: 2}
	if c.Pending() != 4 {
		t.Errorf("Pending() = %d, want 4", c.Pending())
	}
	if c.Percent() != 25 {
		t.Errorf("Percent() = %v, want 25", c.Percent())
	}
	if got, want := c.String(), "Progressing/Finished/Total 2/2/8 (25.00%)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if (Counts{}).Percent() != 0 {
		t.Error("empty store should report 0%")
	}
}
