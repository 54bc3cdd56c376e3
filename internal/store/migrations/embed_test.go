package migrations

import "testing"

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	tests := []struct {
		dir   string
		files func() ([]string, error)
	}{
		{"sqlite", func() ([]string, error) { return Files(SQLite, "sqlite") }},
		{"postgres", func() ([]string, error) { return Files(Postgres, "postgres") }},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			names, err := tt.files()
			if err != nil {
				t.Fatal(err)
			}
			if len(names) == 0 || len(names)%2 != 0 {
				t.Errorf("migrations = %v, want up/down pairs", names)
			}
		})
	}
}
