package orchestrator

import (
	"time"

	"poof_palace_engine/publisher"
)

// SocialPost is a finished piece of content. It is built once per cycle,
// after the image exists, and never modified.
type SocialPost struct {
	ImagePath  string
	Caption    string
	AltText    string
	SourceIdea string
}

// CommunityTrend is a popular idea from the community. Nothing produces it yet.
type CommunityTrend struct {
	Platform        string
	Content         string
	EngagementScore int
}

// Cycle kinds.
const (
	KindContent   = "content"
	KindCommunity = "community_analysis"
	KindPoll      = "product_poll"
)

// CycleReport summarizes one cycle for observers.
type CycleReport struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Idea       string             `json:"idea,omitempty"`
	ImagePath  string             `json:"image_path,omitempty"`
	Results    []publisher.Result `json:"results,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Recorder receives a report after every cycle.
type Recorder interface {
	Record(report CycleReport)
}
