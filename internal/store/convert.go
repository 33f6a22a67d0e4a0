package store

import "github.com/gulkily/thywill-sub001/internal/record"

// Record synthesis from rows. The healer and exporter use these to rebuild
// archive blocks for rows missing a location, and the reconciler uses them to
// compare an incoming record against what the database already holds. Joined
// name fields must be populated, so only rows produced by the Read methods
// convert correctly.

func (r UserRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainUser, User: &record.User{
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Created:      r.Created,
		Admin:        r.Admin,
	}}
}

func (r RoleRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainRole, Role: &record.Role{
		Username:  r.Username,
		Role:      r.RoleName,
		GrantedBy: r.GrantedBy,
		GrantedAt: r.GrantedAt,
	}}
}

func (r PrayerRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainPrayer, Prayer: &record.Prayer{
		ID:          r.NaturalKey,
		Author:      r.Author,
		Text:        r.Text,
		Created:     r.Created,
		Category:    r.Category,
		SafetyScore: r.SafetyScore,
		Flags:       r.Flags,
	}}
}

func (r MarkRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainPrayerMark, Mark: &record.PrayerMark{
		PrayerID: r.PrayerKey,
		Username: r.Username,
		MarkedAt: r.MarkedAt,
	}}
}

func (r AttributeRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainPrayerAttribute, Attribute: &record.PrayerAttribute{
		PrayerID: r.PrayerKey,
		Name:     r.Name,
		Value:    r.Value,
		SetBy:    r.SetBy,
		SetAt:    r.SetAt,
	}}
}

func (r ActivityRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainActivity, Activity: &record.Activity{
		At:     r.At,
		Actor:  r.Actor,
		Action: r.Action,
		Target: r.Target,
	}}
}

func (r AuthEventRow) Record() *record.Record {
	return &record.Record{Domain: record.DomainAuthEvent, Auth: &record.AuthEvent{
		At:       r.At,
		Username: r.Username,
		Kind:     r.Kind,
		Note:     r.Note,
	}}
}
