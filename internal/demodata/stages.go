package demodata

import (
	"context"
	"errors"
	"time"

	"brandhub.dev/demodata/internal/docstore"
)

// Demo collections, in teardown order.
const (
	CollectionBrands            = "brands"
	CollectionRetailers         = "retailers"
	CollectionUsers             = "users"
	CollectionTrainings         = "trainings"
	CollectionSamplePrograms    = "sample_programs"
	CollectionSampleRequests    = "sample_requests"
	CollectionAnnouncements     = "announcements"
	CollectionCommunities       = "communities"
	CollectionTrainingProgress  = "training_progress"
	CollectionCommunityPosts    = "community_posts"
	CollectionCommunityComments = "community_comments"
	CollectionCommunityLikes    = "community_likes"
)

// Count keys reported by a seed run.
const (
	EntityBrands            = "brands"
	EntityRetailers         = "retailers"
	EntityBrandManagers     = "brand_managers"
	EntityStaff             = "staff"
	EntityTrainings         = "trainings"
	EntitySamplePrograms    = "sample_programs"
	EntitySampleRequests    = "sample_requests"
	EntityAnnouncements     = "announcements"
	EntityCommunities       = "communities"
	EntityTrainingProgress  = "training_progress"
	EntityCommunityPosts    = "community_posts"
	EntityCommunityComments = "community_comments"
	EntityCommunityLikes    = "community_likes"
)

// Collections lists every collection a seed run may write, optional ones included.
func Collections() []string {
	return []string{
		CollectionBrands,
		CollectionRetailers,
		CollectionUsers,
		CollectionTrainings,
		CollectionSamplePrograms,
		CollectionSampleRequests,
		CollectionAnnouncements,
		CollectionCommunities,
		CollectionTrainingProgress,
		CollectionCommunityPosts,
		CollectionCommunityComments,
		CollectionCommunityLikes,
	}
}

// Features toggles the optional stages.
type Features struct {
	TrainingProgress bool `json:"training_progress"`
	CommunityPosts   bool `json:"community_posts"`
}

// resolvedUser is a user identity ready to be written (or referenced only).
type resolvedUser struct {
	UserRef
	// External ids were supplied by the caller; their documents are not ours to write.
	External bool
}

type seedRun struct {
	id         string
	operatorID string
	now        time.Time
	ds         *Dataset
	store      docstore.Store
	session    *BatchSession
	refs       *RefTable

	manager resolvedUser
	staff   []resolvedUser
}

// stageFunc stages a stage's writes. The returned publish func records the
// stage's keys in the RefTable and is only called after the final flush.
type stageFunc func(ctx context.Context, r *seedRun) (publish func(), err error)

type stage struct {
	name    string
	enabled func(Features) bool
	run     stageFunc
}

func always(Features) bool { return true }

var pipeline = []stage{
	{name: "brand", enabled: always, run: stageBrand},
	{name: "retailers", enabled: always, run: stageRetailers},
	{name: "user_accounts", enabled: always, run: stageUserAccounts},
	{name: "trainings", enabled: always, run: stageTrainings},
	{name: "sample_programs", enabled: always, run: stageSamplePrograms},
	{name: "sample_requests", enabled: always, run: stageSampleRequests},
	{name: "announcements", enabled: always, run: stageAnnouncements},
	{name: "communities", enabled: always, run: stageCommunities},
	{name: "training_progress", enabled: func(f Features) bool { return f.TrainingProgress }, run: stageTrainingProgress},
	{name: "community_posts", enabled: func(f Features) bool { return f.CommunityPosts }, run: stageCommunityPosts},
	{name: "community_comments", enabled: func(f Features) bool { return f.CommunityPosts }, run: stageCommunityComments},
	{name: "community_likes", enabled: func(f Features) bool { return f.CommunityPosts }, run: stageCommunityLikes},
}

// StageNames lists the pipeline stages enabled by f, in execution order.
func StageNames(f Features) []string {
	var out []string
	for _, st := range pipeline {
		if st.enabled(f) {
			out = append(out, st.name)
		}
	}
	return out
}

func stageBrand(ctx context.Context, r *seedRun) (func(), error) {
	b := r.ds.Brand
	key := Slugify(b.Key)
	doc := docstore.Document{
		"name":        b.Name,
		"description": b.Description,
		"website":     b.Website,
		"ownerId":     r.operatorID,
		"managerId":   r.manager.ID,
		"updatedAt":   r.now,
	}
	ref := docstore.Ref{Collection: CollectionBrands, ID: key}
	// createdAt is set once; re-seeding merges over the existing brand
	switch _, err := r.store.Get(ctx, ref); {
	case errors.Is(err, docstore.ErrNotFound):
		doc["createdAt"] = r.now
	case err != nil:
		return nil, err
	}
	if err := r.session.Set(ctx, EntityBrands, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
		return nil, err
	}
	return func() {
		r.refs.BrandID = key
		r.refs.BrandManager = r.manager.UserRef
	}, nil
}

func stageRetailers(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	minted := make([]RetailerRef, 0, len(r.ds.Retailers))
	for _, f := range r.ds.Retailers {
		ref := r.store.NewRef(CollectionRetailers)
		doc := docstore.Document{
			"brandId":   brandID,
			"chain":     f.Chain,
			"storeCode": f.StoreCode,
			"location": map[string]any{
				"city":  f.City,
				"state": f.State,
			},
			"createdAt": r.now,
		}
		if err := r.session.Set(ctx, EntityRetailers, ref, doc, docstore.SetOptions{}); err != nil {
			return nil, err
		}
		minted = append(minted, RetailerRef{ID: ref.ID, Chain: f.Chain, StoreCode: f.StoreCode})
	}
	return func() { r.refs.retailers = append(r.refs.retailers, minted...) }, nil
}

func stageUserAccounts(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	if !r.manager.External {
		doc := docstore.Document{
			"role":        "brand_manager",
			"email":       r.manager.Email,
			"displayName": r.manager.DisplayName,
			"brandId":     brandID,
			"placeholder": r.manager.Placeholder,
			"updatedAt":   r.now,
		}
		ref := docstore.Ref{Collection: CollectionUsers, ID: r.manager.ID}
		if err := r.session.Set(ctx, EntityBrandManagers, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
			return nil, err
		}
	}

	staff := make([]UserRef, 0, len(r.staff))
	for i, u := range r.staff {
		retailer, err := r.refs.Retailer(r.ds.Staff[i].Retailer)
		if err != nil {
			return nil, err
		}
		u.RetailerID, u.StoreCode = retailer.ID, retailer.StoreCode
		staff = append(staff, u.UserRef)
		if u.External {
			continue
		}
		status := "pending"
		if r.ds.Staff[i].Verified {
			status = "verified"
		}
		doc := docstore.Document{
			"role":               "staff",
			"email":              u.Email,
			"displayName":        u.DisplayName,
			"brandId":            brandID,
			"retailerId":         retailer.ID,
			"storeCode":          retailer.StoreCode,
			"verificationStatus": status,
			"placeholder":        u.Placeholder,
			"updatedAt":          r.now,
		}
		ref := docstore.Ref{Collection: CollectionUsers, ID: u.ID}
		if err := r.session.Set(ctx, EntityStaff, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
			return nil, err
		}
	}
	return func() { r.refs.staff = append(r.refs.staff, staff...) }, nil
}

func stageTrainings(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	minted := make([]string, 0, len(r.ds.Trainings))
	for _, f := range r.ds.Trainings {
		sections := make([]any, 0, len(f.Sections))
		for i, s := range f.Sections {
			sec := map[string]any{"order": i, "kind": s.Kind, "title": s.Title}
			switch s.Kind {
			case "video":
				sec["url"] = s.URL
			default:
				sec["body"] = s.Body
			}
			sections = append(sections, sec)
		}
		ref := r.store.NewRef(CollectionTrainings)
		doc := docstore.Document{
			"brandId":     brandID,
			"ownerId":     r.refs.BrandManager.ID,
			"title":       f.Title,
			"description": f.Description,
			"sections":    sections,
			"status":      "published",
			"metrics":     map[string]any{"enrolled": 0, "completed": 0},
			"createdAt":   r.now,
		}
		if err := r.session.Set(ctx, EntityTrainings, ref, doc, docstore.SetOptions{}); err != nil {
			return nil, err
		}
		minted = append(minted, ref.ID)
	}
	return func() { r.refs.trainings = append(r.refs.trainings, minted...) }, nil
}

func stageSamplePrograms(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	minted := make([]string, 0, len(r.ds.SamplePrograms))
	for _, f := range r.ds.SamplePrograms {
		starts := r.now.AddDate(0, 0, f.StartOffsetDays)
		ends := starts.AddDate(0, 0, f.DurationDays)
		status := "active"
		if starts.After(r.now) {
			status = "scheduled"
		}
		ref := r.store.NewRef(CollectionSamplePrograms)
		doc := docstore.Document{
			"brandId":   brandID,
			"name":      f.Name,
			"units":     f.Units,
			"startsAt":  starts,
			"endsAt":    ends,
			"status":    status,
			"createdAt": r.now,
		}
		if err := r.session.Set(ctx, EntitySamplePrograms, ref, doc, docstore.SetOptions{}); err != nil {
			return nil, err
		}
		minted = append(minted, ref.ID)
	}
	return func() { r.refs.programs = append(r.refs.programs, minted...) }, nil
}

func stageSampleRequests(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	var minted []string
	for i, p := range r.ds.SamplePrograms {
		programID, err := r.refs.Program(i)
		if err != nil {
			return nil, err
		}
		for _, f := range p.Requests {
			staff, err := r.refs.Staff(f.Staff)
			if err != nil {
				return nil, err
			}
			retailer, err := r.refs.Retailer(f.Retailer)
			if err != nil {
				return nil, err
			}
			ref := r.store.NewRef(CollectionSampleRequests)
			doc := docstore.Document{
				"brandId":     brandID,
				"programId":   programID,
				"staffId":     staff.ID,
				"staffName":   staff.DisplayName,
				"retailerId":  retailer.ID,
				"storeCode":   retailer.StoreCode,
				"status":      f.Status,
				"quantity":    f.Quantity,
				"requestedAt": r.now,
			}
			if err := r.session.Set(ctx, EntitySampleRequests, ref, doc, docstore.SetOptions{}); err != nil {
				return nil, err
			}
			minted = append(minted, ref.ID)
		}
	}
	return func() { r.refs.requests = append(r.refs.requests, minted...) }, nil
}

func stageAnnouncements(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	minted := make([]string, 0, len(r.ds.Announcements))
	for _, f := range r.ds.Announcements {
		doc := docstore.Document{
			"brandId":     brandID,
			"authorId":    r.refs.BrandManager.ID,
			"title":       f.Title,
			"body":        f.Body,
			"audience":    "all",
			"publishedAt": r.now,
		}
		if len(f.Retailers) > 0 {
			scoped := make([]any, 0, len(f.Retailers))
			for _, idx := range f.Retailers {
				retailer, err := r.refs.Retailer(idx)
				if err != nil {
					return nil, err
				}
				scoped = append(scoped, retailer.ID)
			}
			doc["audience"] = "retailers"
			doc["retailerIds"] = scoped
		}
		ref := r.store.NewRef(CollectionAnnouncements)
		if err := r.session.Set(ctx, EntityAnnouncements, ref, doc, docstore.SetOptions{}); err != nil {
			return nil, err
		}
		minted = append(minted, ref.ID)
	}
	return func() { r.refs.announcements = append(r.refs.announcements, minted...) }, nil
}

func stageCommunities(ctx context.Context, r *seedRun) (func(), error) {
	brandID, err := r.refs.Brand()
	if err != nil {
		return nil, err
	}
	minted := make([]string, 0, len(r.ds.Communities))
	for _, f := range r.ds.Communities {
		slug := f.slug()
		visibility := "private"
		if f.Public {
			visibility = "public"
		}
		doc := docstore.Document{
			"brandId":     brandID,
			"slug":        slug,
			"name":        f.Name,
			"description": f.Description,
			"visibility":  visibility,
			"verified":    f.Verified,
			"createdBy":   r.refs.BrandManager.ID,
			"updatedAt":   r.now,
		}
		ref := docstore.Ref{Collection: CollectionCommunities, ID: slug}
		if err := r.session.Set(ctx, EntityCommunities, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
			return nil, err
		}
		minted = append(minted, slug)
	}
	return func() { r.refs.communities = append(r.refs.communities, minted...) }, nil
}

func stageTrainingProgress(ctx context.Context, r *seedRun) (func(), error) {
	for _, f := range r.ds.TrainingProgress {
		staff, err := r.refs.Staff(f.Staff)
		if err != nil {
			return nil, err
		}
		trainingID, err := r.refs.Training(f.Training)
		if err != nil {
			return nil, err
		}
		total := len(r.ds.Trainings[f.Training].Sections)
		done := min(f.CompletedSections, total)
		status := "in_progress"
		if total > 0 && done == total {
			status = "completed"
		}
		percent := 0
		if total > 0 {
			percent = done * 100 / total
		}
		doc := docstore.Document{
			"userId":            staff.ID,
			"trainingId":        trainingID,
			"completedSections": done,
			"totalSections":     total,
			"percent":           percent,
			"status":            status,
			"updatedAt":         r.now,
		}
		ref := docstore.Ref{Collection: CollectionTrainingProgress, ID: trainingID + "_" + staff.ID}
		if err := r.session.Set(ctx, EntityTrainingProgress, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
			return nil, err
		}
	}
	return func() {}, nil
}

func stageCommunityPosts(ctx context.Context, r *seedRun) (func(), error) {
	minted := make([]string, 0, len(r.ds.CommunityPosts))
	for _, f := range r.ds.CommunityPosts {
		communityID, err := r.refs.Community(f.Community)
		if err != nil {
			return nil, err
		}
		author, err := r.refs.Staff(f.Author)
		if err != nil {
			return nil, err
		}
		ref := r.store.NewRef(CollectionCommunityPosts)
		doc := docstore.Document{
			"communityId":  communityID,
			"authorId":     author.ID,
			"authorName":   author.DisplayName,
			"body":         f.Body,
			"commentCount": len(f.Comments),
			"likeCount":    len(f.Likes),
			"createdAt":    r.now,
		}
		if err := r.session.Set(ctx, EntityCommunityPosts, ref, doc, docstore.SetOptions{}); err != nil {
			return nil, err
		}
		minted = append(minted, ref.ID)
	}
	return func() { r.refs.posts = append(r.refs.posts, minted...) }, nil
}

func stageCommunityComments(ctx context.Context, r *seedRun) (func(), error) {
	for i, f := range r.ds.CommunityPosts {
		postID, err := r.refs.Post(i)
		if err != nil {
			return nil, err
		}
		communityID, err := r.refs.Community(f.Community)
		if err != nil {
			return nil, err
		}
		for _, c := range f.Comments {
			author, err := r.refs.Staff(c.Author)
			if err != nil {
				return nil, err
			}
			doc := docstore.Document{
				"postId":      postID,
				"communityId": communityID,
				"authorId":    author.ID,
				"body":        c.Body,
				"createdAt":   r.now,
			}
			if err := r.session.Set(ctx, EntityCommunityComments, r.store.NewRef(CollectionCommunityComments), doc, docstore.SetOptions{}); err != nil {
				return nil, err
			}
		}
	}
	return func() {}, nil
}

func stageCommunityLikes(ctx context.Context, r *seedRun) (func(), error) {
	for i, f := range r.ds.CommunityPosts {
		postID, err := r.refs.Post(i)
		if err != nil {
			return nil, err
		}
		for _, s := range f.Likes {
			user, err := r.refs.Staff(s)
			if err != nil {
				return nil, err
			}
			// one like per user and post
			ref := docstore.Ref{Collection: CollectionCommunityLikes, ID: postID + "_" + user.ID}
			doc := docstore.Document{"postId": postID, "userId": user.ID, "createdAt": r.now}
			if err := r.session.Set(ctx, EntityCommunityLikes, ref, doc, docstore.SetOptions{Merge: true}); err != nil {
				return nil, err
			}
		}
	}
	return func() {}, nil
}

// asStageError attaches the stage name unless err already carries one.
func asStageError(stage string, err error) error {
	var swe *StageWriteError
	if errors.As(err, &swe) {
		return err
	}
	return &StageWriteError{Stage: stage, Err: err}
}
