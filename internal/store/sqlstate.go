package store

import (
	"strconv"

	"github.com/mikann-OMO/bot/internal/keyword"
)

// Setting names in keyword_settings.
const (
	SettingCooldownMS = "cooldown_ms"
	SettingGroupsSet  = "groups_set" // "1" once a group scope has been saved
)

// Row is one keyword row in the SQL layout.
type Row struct {
	Table    string
	Position int
	Pattern  string
	Reply    string
}

// Rows flattens st's tables into ordered rows.
func Rows(st keyword.State) []Row {
	rows := make([]Row, 0, len(st.Exact)+len(st.Contains))
	for i, e := range st.Exact {
		rows = append(rows, Row{keyword.Exact.String(), i, e.Pattern, e.Reply})
	}
	for i, e := range st.Contains {
		rows = append(rows, Row{keyword.Contains.String(), i, e.Pattern, e.Reply})
	}
	return rows
}

// AppendRow adds a row, read in position order, to st.
func AppendRow(st *keyword.State, r Row) {
	e := keyword.Entry{Pattern: r.Pattern, Reply: r.Reply}
	if r.Table == keyword.Contains.String() {
		st.Contains = append(st.Contains, e)
	} else {
		st.Exact = append(st.Exact, e)
	}
}

// ApplySetting copies a keyword_settings value into st. groupsSet reports
// whether a scope was ever saved, so an empty group table can be told apart
// from a fresh database.
func ApplySetting(st *keyword.State, name, value string, groupsSet *bool) {
	switch name {
	case SettingCooldownMS:
		st.CooldownTime, _ = strconv.ParseInt(value, 10, 64)
	case SettingGroupsSet:
		*groupsSet = value == "1"
	}
}
