package demodata

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dataset.yaml
var defaultDatasetYAML []byte

// Dataset is everything a seed run provisions. Cross references are indexes
// into the sibling lists and are resolved against the RefTable at write time.
type Dataset struct {
	Brand            BrandFixture           `yaml:"brand"`
	BrandManager     IdentitySpec           `yaml:"brandManager"`
	Retailers        []RetailerFixture      `yaml:"retailers"`
	Staff            []StaffFixture         `yaml:"staff"`
	Trainings        []TrainingFixture      `yaml:"trainings"`
	SamplePrograms   []SampleProgramFixture `yaml:"samplePrograms"`
	Announcements    []AnnouncementFixture  `yaml:"announcements"`
	Communities      []CommunityFixture     `yaml:"communities"`
	TrainingProgress []ProgressFixture      `yaml:"trainingProgress"`
	CommunityPosts   []PostFixture          `yaml:"communityPosts"`
}

type BrandFixture struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Website     string `yaml:"website"`
}

type RetailerFixture struct {
	Chain     string `yaml:"chain"`
	StoreCode string `yaml:"storeCode"`
	City      string `yaml:"city"`
	State     string `yaml:"state"`
}

type StaffFixture struct {
	IdentitySpec `yaml:",inline"`
	Retailer     int  `yaml:"retailer"`
	Verified     bool `yaml:"verified"`
}

type SectionFixture struct {
	Kind  string `yaml:"kind"`
	Title string `yaml:"title"`
	Body  string `yaml:"body,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

type TrainingFixture struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Sections    []SectionFixture `yaml:"sections"`
}

type SampleProgramFixture struct {
	Name            string                 `yaml:"name"`
	Units           int                    `yaml:"units"`
	StartOffsetDays int                    `yaml:"startOffsetDays"`
	DurationDays    int                    `yaml:"durationDays"`
	Requests        []SampleRequestFixture `yaml:"requests"`
}

type SampleRequestFixture struct {
	Staff    int    `yaml:"staff"`
	Retailer int    `yaml:"retailer"`
	Status   string `yaml:"status"`
	Quantity int    `yaml:"quantity"`
}

type AnnouncementFixture struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	// Retailers scopes the announcement; empty broadcasts to all.
	Retailers []int `yaml:"retailers,omitempty"`
}

type CommunityFixture struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Public      bool   `yaml:"public"`
	Verified    bool   `yaml:"verified"`
}

type ProgressFixture struct {
	Staff             int `yaml:"staff"`
	Training          int `yaml:"training"`
	CompletedSections int `yaml:"completedSections"`
}

type PostFixture struct {
	Community int              `yaml:"community"`
	Author    int              `yaml:"author"`
	Body      string           `yaml:"body"`
	Comments  []CommentFixture `yaml:"comments,omitempty"`
	Likes     []int            `yaml:"likes,omitempty"`
}

type CommentFixture struct {
	Author int    `yaml:"author"`
	Body   string `yaml:"body"`
}

var (
	sampleStatuses = map[string]bool{"pending": true, "approved": true, "shipped": true, "denied": true}
	sectionKinds   = map[string]bool{"text": true, "video": true}
	slugUnsafe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// DefaultDataset returns the built-in demo dataset.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultDatasetYAML)
}

// LoadDataset reads a YAML dataset from path.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(raw)
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(raw []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate rejects missing required fields and dangling indexes.
func (d *Dataset) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if Slugify(d.Brand.Key) == "" {
		bad("brand.key is required")
	}
	if strings.TrimSpace(d.Brand.Name) == "" {
		bad("brand.name is required")
	}
	emails := map[string]string{}
	if e := normalizeEmail(d.BrandManager.Email); e != "" {
		emails[e] = "brandManager"
	}
	for i, s := range d.Staff {
		if s.Email == "" {
			bad("staff[%d].email is required", i)
		}
		if e := normalizeEmail(s.Email); e != "" {
			if prev, dup := emails[e]; dup {
				bad("staff[%d].email %q duplicates %s", i, s.Email, prev)
			} else {
				emails[e] = fmt.Sprintf("staff[%d]", i)
			}
		}
		if s.Retailer < 0 || s.Retailer >= len(d.Retailers) {
			bad("staff[%d].retailer %d out of range", i, s.Retailer)
		}
	}
	for i, t := range d.Trainings {
		for j, sec := range t.Sections {
			if !sectionKinds[sec.Kind] {
				bad("trainings[%d].sections[%d].kind %q unknown", i, j, sec.Kind)
			}
		}
	}
	for i, p := range d.SamplePrograms {
		if p.Units <= 0 {
			bad("samplePrograms[%d].units must be positive", i)
		}
		for j, r := range p.Requests {
			if r.Staff < 0 || r.Staff >= len(d.Staff) {
				bad("samplePrograms[%d].requests[%d].staff %d out of range", i, j, r.Staff)
			}
			if r.Retailer < 0 || r.Retailer >= len(d.Retailers) {
				bad("samplePrograms[%d].requests[%d].retailer %d out of range", i, j, r.Retailer)
			}
			if !sampleStatuses[r.Status] {
				bad("samplePrograms[%d].requests[%d].status %q unknown", i, j, r.Status)
			}
		}
	}
	for i, a := range d.Announcements {
		for _, r := range a.Retailers {
			if r < 0 || r >= len(d.Retailers) {
				bad("announcements[%d].retailers %d out of range", i, r)
			}
		}
	}
	slugs := map[string]int{}
	for i, c := range d.Communities {
		slug := c.slug()
		if slug == "" {
			bad("communities[%d] needs a slug or name", i)
			continue
		}
		if prev, dup := slugs[slug]; dup {
			bad("communities[%d] slug %q duplicates communities[%d]", i, slug, prev)
			continue
		}
		slugs[slug] = i
	}
	for i, p := range d.TrainingProgress {
		if p.Staff < 0 || p.Staff >= len(d.Staff) {
			bad("trainingProgress[%d].staff %d out of range", i, p.Staff)
		}
		if p.Training < 0 || p.Training >= len(d.Trainings) {
			bad("trainingProgress[%d].training %d out of range", i, p.Training)
		}
	}
	for i, p := range d.CommunityPosts {
		if p.Community < 0 || p.Community >= len(d.Communities) {
			bad("communityPosts[%d].community %d out of range", i, p.Community)
		}
		staffIdx := append([]int{p.Author}, p.Likes...)
		for _, c := range p.Comments {
			staffIdx = append(staffIdx, c.Author)
		}
		for _, s := range staffIdx {
			if s < 0 || s >= len(d.Staff) {
				bad("communityPosts[%d] staff %d out of range", i, s)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid dataset: %w", errors.Join(errs...))
	}
	return nil
}

func (c CommunityFixture) slug() string {
	if s := Slugify(c.Slug); s != "" {
		return s
	}
	return Slugify(c.Name)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Slugify lowercases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
