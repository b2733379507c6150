package models

import (
	"encoding/json"
	"fmt"
)

// Date is a Gregorian calendar date. Registry pages carry Minguo (ROC)
// dates; convert with DateFromROC before storing.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// DateFromROC converts an ROC calendar date to Gregorian (year + 1911).
func DateFromROC(year, month, day int) Date {
	return Date{Year: year + 1911, Month: month, Day: day}
}

// CodeItem is one business-activity line: a registered business code plus
// its free-text description.
type CodeItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// LinkedEntity is a company reference embedded in a director row, extracted
// from the page's script-call link (id + display name).
type LinkedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Officer is one row of the director/shareholder sub-table.
type Officer struct {
	Seq    string        `json:"seq"`
	Title  string        `json:"title"`
	Name   string        `json:"name"`
	Legal  *LinkedEntity `json:"legal_entity,omitempty"`
	Amount string        `json:"amount,omitempty"`
}

// Manager is one row of the manager sub-table.
type Manager struct {
	Seq         string `json:"seq"`
	Name        string `json:"name"`
	OnboardDate *Date  `json:"onboard_date,omitempty"`
}

// ValueKind discriminates the Value union.
type ValueKind int

const (
	ValString ValueKind = iota
	ValDate
	ValCodeList
	ValNames
	ValOfficers
	ValManagers
)

// Value is a tagged union of the shapes a detail-record field can take.
// Field labels are open-ended (the site adds and renames them), so unknown
// labels pass through as plain strings rather than failing.
type Value struct {
	Kind     ValueKind
	Str      string
	Date     *Date
	Codes    []CodeItem
	Names    []string
	Officers []Officer
	Managers []Manager
}

// StringValue wraps a plain string field.
func StringValue(s string) Value { return Value{Kind: ValString, Str: s} }

// DateValue wraps a converted date field.
func DateValue(d Date) Value { return Value{Kind: ValDate, Date: &d} }

// CodeListValue wraps business-activity line items.
func CodeListValue(items []CodeItem) Value { return Value{Kind: ValCodeList, Codes: items} }

// NamesValue wraps a multi-name field (several localized names in one cell).
func NamesValue(names []string) Value { return Value{Kind: ValNames, Names: names} }

// OfficersValue wraps the director/shareholder sub-table.
func OfficersValue(rows []Officer) Value { return Value{Kind: ValOfficers, Officers: rows} }

// ManagersValue wraps the manager sub-table.
func ManagersValue(rows []Manager) Value { return Value{Kind: ValManagers, Managers: rows} }

// MarshalJSON emits the natural JSON shape for each variant: a bare string,
// a {year,month,day} object, or a list.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValString:
		return json.Marshal(v.Str)
	case ValDate:
		return json.Marshal(v.Date)
	case ValCodeList:
		return json.Marshal(v.Codes)
	case ValNames:
		return json.Marshal(v.Names)
	case ValOfficers:
		return json.Marshal(v.Officers)
	case ValManagers:
		return json.Marshal(v.Managers)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.Kind)
}

// UnmarshalJSON infers the variant from the JSON shape. Lists of objects are
// disambiguated by their keys: "code" marks activity items, "title" marks
// officer rows, anything else with "seq" is a manager row.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch typed := probe.(type) {
	case nil:
		// An empty multi-value field (e.g. an activity cell with no codes
		// and no lines) marshals as null.
		*v = NamesValue(nil)
		return nil
	case string:
		*v = StringValue(typed)
		return nil
	case map[string]interface{}:
		if _, ok := typed["year"]; ok {
			var d Date
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			*v = DateValue(d)
			return nil
		}
		return fmt.Errorf("unrecognized object value: %s", string(data))
	case []interface{}:
		if len(typed) == 0 {
			*v = NamesValue(nil)
			return nil
		}
		switch first := typed[0].(type) {
		case string:
			var names []string
			if err := json.Unmarshal(data, &names); err != nil {
				return err
			}
			*v = NamesValue(names)
			return nil
		case map[string]interface{}:
			if _, ok := first["code"]; ok {
				var items []CodeItem
				if err := json.Unmarshal(data, &items); err != nil {
					return err
				}
				*v = CodeListValue(items)
				return nil
			}
			if _, ok := first["title"]; ok {
				var rows []Officer
				if err := json.Unmarshal(data, &rows); err != nil {
					return err
				}
				*v = OfficersValue(rows)
				return nil
			}
			var rows []Manager
			if err := json.Unmarshal(data, &rows); err != nil {
				return err
			}
			*v = ManagersValue(rows)
			return nil
		}
	}
	return fmt.Errorf("unrecognized value shape: %s", string(data))
}

// Equal compares two values structurally. Used by tests and by the
// round-trip persistence property.
func (v Value) Equal(other Value) bool {
	a, errA := json.Marshal(v)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}
