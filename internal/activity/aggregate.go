package activity

import (
	"fmt"
	"sort"
	"time"
)

// Span lengths accepted by Buckets.
const (
	SpanWeek  = 7
	SpanMonth = 30
)

// RecentFeedSize is the number of entries in the recent-activity feed.
const RecentFeedSize = 5

// NewWithin is the age below which a feed entry is flagged as new.
const NewWithin = time.Hour

// Bucket is one calendar day's aggregate count within the active window.
type Bucket struct {
	DateLabel string `json:"name"`
	DateKey   string `json:"dateKey"`
	Count     int    `json:"value"`
}

// FeedItem is one annotated entry of the recent-activity feed.
type FeedItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Desc    string `json:"desc"`
	TimeAgo string `json:"time"`
	IsNew   bool   `json:"isNew"`
}

// Contributor identifies a distinct actor seen on a repository.
type Contributor struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// RepoSummary aggregates per-repository activity within the window.
type RepoSummary struct {
	RepositoryID string        `json:"repositoryId"`
	LastActivity time.Time     `json:"lastActivity"`
	Contributors []Contributor `json:"contributors"`
	LastCommit   string        `json:"lastCommit"`
}

// Buckets produces span contiguous calendar-day buckets ending at anchor,
// counted in loc. Recompute is a full pass over the records; the working
// set is bounded to a single window, so incremental bucket arithmetic is
// not worth its bookkeeping.
func Buckets(records []Record, span int, anchor time.Time, loc *time.Location) []Bucket {
	if span != SpanWeek && span != SpanMonth {
		span = SpanWeek
	}
	if loc == nil {
		loc = time.Local
	}
	anchorYear, anchorMonth, anchorDay := anchor.In(loc).Date()
	anchorMidnight := time.Date(anchorYear, anchorMonth, anchorDay, 0, 0, 0, 0, loc)

	buckets := make([]Bucket, span)
	counts := make(map[string]int, span)
	for i := 0; i < span; i++ {
		day := anchorMidnight.AddDate(0, 0, -(span - 1 - i))
		key := day.Format("2006-01-02")
		label := day.Format("Mon 2")
		if span == SpanMonth {
			label = day.Format("Mon 2 Jan")
		}
		buckets[i] = Bucket{DateLabel: label, DateKey: key}
		counts[key] = i
	}
	for _, record := range records {
		key := record.CreatedAt.In(loc).Format("2006-01-02")
		if i, ok := counts[key]; ok {
			buckets[i].Count++
		}
	}
	return buckets
}

// BucketTotal sums the bucket counts for the summary header.
func BucketTotal(buckets []Bucket) int {
	total := 0
	for _, bucket := range buckets {
		total += bucket.Count
	}
	return total
}

// CountOnDay counts records whose creation time falls on the given local day.
func CountOnDay(records []Record, day time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	year, month, dayOfMonth := day.In(loc).Date()
	count := 0
	for _, record := range records {
		if record.OnLocalDay(year, month, dayOfMonth, loc) {
			count++
		}
	}
	return count
}

// Recent derives the top-5 feed: newest first by createdAt, stable by
// recency order among equal timestamps, so the most recently merged record
// wins position among ties.
func Recent(records []Record, now time.Time) []FeedItem {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > RecentFeedSize {
		sorted = sorted[:RecentFeedSize]
	}

	feed := make([]FeedItem, 0, len(sorted))
	for _, record := range sorted {
		feed = append(feed, FeedItem{
			ID:      record.ID,
			Title:   feedTitle(record),
			Desc:    feedDesc(record),
			TimeAgo: TimeAgo(record.CreatedAt, now),
			IsNew:   now.Sub(record.CreatedAt) < NewWithin,
		})
	}
	return feed
}

func feedTitle(record Record) string {
	switch record.Type {
	case TypePush:
		title := "Push to branch"
		if record.Branch != "" {
			title += " " + record.Branch
		}
		return title
	case TypePullRequest:
		return "Pull Request"
	case TypeIssue:
		return "Issue Activity"
	default:
		return "Event"
	}
}

func feedDesc(record Record) string {
	desc := record.Message
	if desc == "" {
		desc = "No description"
	}
	return record.ActorLabel() + ": " + desc
}

// TimeAgo renders a coarse relative age for feed entries.
func TimeAgo(at, now time.Time) string {
	seconds := int64(now.Sub(at).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds >= 31536000:
		return fmt.Sprintf("%dy ago", seconds/31536000)
	case seconds >= 2592000:
		return fmt.Sprintf("%dmo ago", seconds/2592000)
	case seconds >= 86400:
		return fmt.Sprintf("%dd ago", seconds/86400)
	case seconds >= 3600:
		return fmt.Sprintf("%dh ago", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%dm ago", seconds/60)
	default:
		return fmt.Sprintf("%ds ago", seconds)
	}
}

// RepoSummaries aggregates the window per repository: newest activity,
// distinct contributors in first-seen order, and the latest commit ref
// (short id) when the newest event is a push.
func RepoSummaries(records []Record) []RepoSummary {
	byRepo := make(map[string][]Record)
	order := make([]string, 0)
	for _, record := range records {
		if record.RepositoryID == "" {
			continue
		}
		if _, ok := byRepo[record.RepositoryID]; !ok {
			order = append(order, record.RepositoryID)
		}
		byRepo[record.RepositoryID] = append(byRepo[record.RepositoryID], record)
	}

	summaries := make([]RepoSummary, 0, len(order))
	for _, repoID := range order {
		repoRecords := byRepo[repoID]
		newest := repoRecords[0]
		for _, record := range repoRecords[1:] {
			if record.CreatedAt.After(newest.CreatedAt) {
				newest = record
			}
		}

		seen := make(map[string]struct{})
		contributors := make([]Contributor, 0)
		for _, record := range repoRecords {
			name := record.ActorLabel()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			contributors = append(contributors, Contributor{Name: name, AvatarURL: record.AvatarURL})
		}

		lastCommit := "Updated"
		if newest.Type == TypePush {
			lastCommit = newest.ID
			if len(lastCommit) > 7 {
				lastCommit = lastCommit[:7]
			}
		}

		summaries = append(summaries, RepoSummary{
			RepositoryID: repoID,
			LastActivity: newest.CreatedAt,
			Contributors: contributors,
			LastCommit:   lastCommit,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries
}
