package record

import (
	"strconv"
	"strings"
	"time"
)

// Fields returns the record's tracked fields as canonical (name, value)
// pairs: the same names and value formatting the text encoding uses, with
// optional fields present even when empty so two records' field sets always
// align. Drift detection compares these pairs; extension fields are not
// tracked by the database and are excluded.
func (r *Record) Fields() []Field {
	switch r.Domain {
	case DomainUser:
		return []Field{
			{"Created", encodeTime(r.User.Created)},
			{"DisplayName", r.User.DisplayName},
			{"Email", r.User.Email},
			{"PasswordHash", r.User.PasswordHash},
			{"Admin", strconv.FormatBool(r.User.Admin)},
		}
	case DomainRole:
		return []Field{
			{"Username", r.Role.Username},
			{"Role", r.Role.Role},
			{"GrantedBy", r.Role.GrantedBy},
			{"GrantedAt", encodeOptTime(r.Role.GrantedAt)},
		}
	case DomainPrayer:
		return []Field{
			{"Author", r.Prayer.Author},
			{"Created", encodeTime(r.Prayer.Created)},
			{"Text", r.Prayer.Text},
			{"Category", r.Prayer.Category},
			{"SafetyScore", strconv.Itoa(r.Prayer.SafetyScore)},
			{"Flags", joinComma(r.Prayer.Flags)},
		}
	case DomainPrayerMark:
		return []Field{
			{"Prayer", r.Mark.PrayerID},
			{"Username", r.Mark.Username},
			{"MarkedAt", encodeTime(r.Mark.MarkedAt)},
		}
	case DomainPrayerAttribute:
		return []Field{
			{"Prayer", r.Attribute.PrayerID},
			{"Name", r.Attribute.Name},
			{"Value", r.Attribute.Value},
			{"SetBy", r.Attribute.SetBy},
			{"SetAt", encodeOptTime(r.Attribute.SetAt)},
		}
	case DomainActivity:
		return []Field{
			{"At", encodeTime(r.Activity.At)},
			{"Actor", r.Activity.Actor},
			{"Action", r.Activity.Action},
			{"Target", r.Activity.Target},
		}
	case DomainAuthEvent:
		return []Field{
			{"At", encodeTime(r.Auth.At)},
			{"Username", r.Auth.Username},
			{"Kind", r.Auth.Kind},
			{"Note", r.Auth.Note},
		}
	default:
		return nil
	}
}

func encodeOptTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return encodeTime(t)
}

func joinComma(ss []string) string {
	return strings.Join(ss, ",")
}
