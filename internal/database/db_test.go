package database

import (
	"strings"
	"testing"

	"github.com/iliyamo/dac-governance/internal/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.DBConfig{User: "dac", Pass: "p@ss", Host: "db", Port: "3306", Name: "governance"})
	for _, want := range []string{"dac:p@ss@tcp(db:3306)/governance?", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(got, want) {
			t.Errorf("DSN() = %q, want it to contain %q", got, want)
		}
	}
}
