package demodata

import "fmt"

// RetailerRef is what later stages need to know about a persisted retailer.
type RetailerRef struct {
	ID        string
	Chain     string
	StoreCode string
}

// UserRef is a persisted (or externally supplied) user account key.
type UserRef struct {
	ID          string
	Email       string
	DisplayName string
	RetailerID  string
	StoreCode   string
	Placeholder bool
}

// RefTable threads keys from earlier stages to later ones within one run.
// Stages publish only after their writes are committed, so every key held
// here names a durable document.
type RefTable struct {
	BrandID      string
	BrandManager UserRef

	retailers     []RetailerRef
	staff         []UserRef
	trainings     []string
	programs      []string
	requests      []string
	announcements []string
	communities   []string
	posts         []string
}

func newRefTable() *RefTable { return &RefTable{} }

func (t *RefTable) Retailer(i int) (RetailerRef, error) {
	if i < 0 || i >= len(t.retailers) {
		return RetailerRef{}, fmt.Errorf("%w: retailer[%d] of %d", ErrUnresolvedRef, i, len(t.retailers))
	}
	return t.retailers[i], nil
}

func (t *RefTable) Staff(i int) (UserRef, error) {
	if i < 0 || i >= len(t.staff) {
		return UserRef{}, fmt.Errorf("%w: staff[%d] of %d", ErrUnresolvedRef, i, len(t.staff))
	}
	return t.staff[i], nil
}

func (t *RefTable) Training(i int) (string, error) { return pick("training", t.trainings, i) }

func (t *RefTable) Program(i int) (string, error) { return pick("sample program", t.programs, i) }

func (t *RefTable) Community(i int) (string, error) { return pick("community", t.communities, i) }

func (t *RefTable) Post(i int) (string, error) { return pick("community post", t.posts, i) }

func (t *RefTable) Brand() (string, error) {
	if t.BrandID == "" {
		return "", fmt.Errorf("%w: brand", ErrUnresolvedRef)
	}
	return t.BrandID, nil
}

func (t *RefTable) Retailers() []RetailerRef { return append([]RetailerRef(nil), t.retailers...) }

func (t *RefTable) StaffRefs() []UserRef { return append([]UserRef(nil), t.staff...) }

func (t *RefTable) SampleRequests() []string { return append([]string(nil), t.requests...) }

func (t *RefTable) Announcements() []string { return append([]string(nil), t.announcements...) }

func pick(kind string, keys []string, i int) (string, error) {
	if i < 0 || i >= len(keys) {
		return "", fmt.Errorf("%w: %s[%d] of %d", ErrUnresolvedRef, kind, i, len(keys))
	}
	return keys[i], nil
}
