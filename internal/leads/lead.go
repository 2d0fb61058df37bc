// Package leads turns the CRM's flat-text lead export into structured records keyed by phone.
//
// An export is a sequence of blocks. Each block starts with the lead's name and continues with
// "Label:" lines, each followed by its value on the next line:
//
//	Jane Doe
//	Company:
//	Acme
//	Phone:
//	(555) 123-4567
//	Unread By Owner:
//	False
package leads

import (
	"strings"
	"time"

	"esther-voice/pkg/utils"
)

const (
	DefaultLeadSource = "web"
	DefaultLeadStatus = "Open - Not Contacted"
	DefaultOwnerAlias = "MDL"
	CallStatusPending = "not_called"
)

type Lead struct {
	Phone         string  `json:"phone"`
	Name          string  `json:"name"`
	Company       string  `json:"company"`
	Email         string  `json:"email"`
	Website       string  `json:"website"`
	StateProvince string  `json:"state_province"`
	LeadSource    string  `json:"lead_source"`
	LeadStatus    string  `json:"lead_status"`
	CreatedDate   *string `json:"created_date"`
	OwnerAlias    string  `json:"owner_alias"`
	UnreadByOwner bool    `json:"unread_by_owner"`

	CallTranscript string `json:"call_transcript"`
	LastCallDate   string `json:"last_call_date"`
	CallStatus     string `json:"call_status"`
}

func newLead() Lead {
	return Lead{
		LeadStatus: DefaultLeadStatus,
		OwnerAlias: DefaultOwnerAlias,
		CallStatus: CallStatusPending,
	}
}

// dateLayouts are tried in order for Created Date, against upper-cased input.
// Non-zero-padded fields also accept padded ones.
var dateLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"2006-1-2 15:04:05",
	"1/2/2006",
	"2006-1-2",
}

// ParseBlock reads one lead block. now stands in for unparseable created dates.
func ParseBlock(block string, now time.Time) Lead {
	lead := newLead()
	lines := strings.Split(strings.TrimSpace(block), "\n")

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])
		if i == 0 && line != "" && !strings.HasSuffix(line, ":") {
			lead.Name = line
			i++
			continue
		}
		if i+1 >= len(lines) || !applyField(&lead, line, strings.TrimSpace(lines[i+1]), now) {
			i++
			continue
		}
		i += 2
	}
	return lead
}

// applyField stores value under label and reports whether label was recognized.
func applyField(lead *Lead, label, value string, now time.Time) bool {
	switch label {
	case "Company:":
		lead.Company = value
	case "Phone:":
		lead.Phone = utils.FormatPhone(value)
	case "Website:":
		if value != "" && !strings.HasPrefix(value, "http") {
			value = "http://" + value
		}
		lead.Website = value
	case "State/Province:":
		lead.StateProvince = value
	case "Lead Source:":
		lead.LeadSource = orDefault(value, DefaultLeadSource)
	case "Email:":
		lead.Email = value
	case "Lead Status:":
		lead.LeadStatus = orDefault(value, DefaultLeadStatus)
	case "Created Date:":
		lead.CreatedDate = ParseDate(value, now)
	case "Owner Alias:":
		lead.OwnerAlias = orDefault(value, DefaultOwnerAlias)
	case "Unread By Owner:":
		lead.UnreadByOwner = strings.ToLower(value) == "true"
	default:
		return false
	}
	return true
}

// ParseDate renders s as an ISO-8601 UTC timestamp. Empty input yields nil; input in no known
// layout yields now.
func ParseDate(s string, now time.Time) *string {
	if s == "" {
		return nil
	}
	norm := strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, norm); err == nil {
			out := t.Format("2006-01-02T15:04:05") + "Z"
			return &out
		}
	}
	out := now.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
	return &out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
