package reputation_test

import (
	"testing"

	"github.com/chorusnet/chorus/internal/reputation"
)

func TestInitializeIsIdempotent(t *testing.T) {
	e := reputation.NewEngine()

	got := e.Initialize("a1", 50.0)
	if got != 50.0 {
		t.Fatalf("Initialize() = %v, want 50.0", got)
	}

	e.RecordSuccess("a1", "j1", 100.0)
	after := e.Score("a1")

	// A second Initialize must not reset the earned score.
	if got := e.Initialize("a1", 50.0); got != after {
		t.Errorf("second Initialize() = %v, want %v", got, after)
	}
}

func TestScoreDefaultsForUnknownAgent(t *testing.T) {
	e := reputation.NewEngine()
	if got := e.Score("ghost"); got != reputation.InitialScore {
		t.Errorf("Score(unknown) = %v, want %v", got, reputation.InitialScore)
	}
	if e.Known("ghost") {
		t.Error("Known(unknown) = true, want false")
	}
}

func TestSuccessRewardWeightedByContractor(t *testing.T) {
	e := reputation.NewEngine()
	e.Initialize("a1", 50.0)
	e.Initialize("a2", 50.0)

	// Hired by a perfect-reputation contractor: full BaseReward.
	u1 := e.RecordSuccess("a1", "j1", 100.0)
	if u1.NewScore != 52.0 {
		t.Errorf("reward from rep-100 contractor: NewScore = %v, want 52.0", u1.NewScore)
	}

	// Hired by an average contractor: half the reward.
	u2 := e.RecordSuccess("a2", "j2", 50.0)
	if u2.NewScore != 51.0 {
		t.Errorf("reward from rep-50 contractor: NewScore = %v, want 51.0", u2.NewScore)
	}
}

func TestFailurePenaltyOutweighsMaxReward(t *testing.T) {
	e := reputation.NewEngine()
	e.Initialize("a1", 50.0)

	u := e.RecordFailure("a1", "j1", 100.0)
	penalty := u.OldScore - u.NewScore
	if penalty != reputation.BasePenalty*reputation.FailureMultiplier {
		t.Errorf("penalty = %v, want %v", penalty, reputation.BasePenalty*reputation.FailureMultiplier)
	}
	if penalty <= reputation.BaseReward {
		t.Errorf("penalty %v must exceed the maximum reward %v", penalty, reputation.BaseReward)
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	e := reputation.NewEngine()
	e.Initialize("low", 50.0)
	e.Initialize("high", 50.0)

	for i := 0; i < 50; i++ {
		e.RecordFailure("low", "j", 50.0)
		e.RecordSuccess("high", "j", 100.0)
	}

	if got := e.Score("low"); got != reputation.MinScore {
		t.Errorf("Score after 50 failures = %v, want %v", got, reputation.MinScore)
	}
	if got := e.Score("high"); got != reputation.MaxScore {
		t.Errorf("Score after 50 successes = %v, want %v", got, reputation.MaxScore)
	}
}

func TestHistoryFiltersByAgent(t *testing.T) {
	e := reputation.NewEngine()
	e.RecordSuccess("a1", "j1", 50.0)
	e.RecordFailure("a2", "j2", 50.0)
	e.RecordSuccess("a1", "j3", 50.0)

	if got := len(e.History("")); got != 3 {
		t.Errorf("History(all) returned %d updates, want 3", got)
	}

	a1 := e.History("a1")
	if len(a1) != 2 {
		t.Fatalf("History(a1) returned %d updates, want 2", len(a1))
	}
	for _, u := range a1 {
		if u.AgentID != "a1" {
			t.Errorf("History(a1) contains update for %q", u.AgentID)
		}
	}
	if !a1[0].Success || a1[0].JobID != "j1" {
		t.Errorf("History(a1)[0] = %+v, want success for j1", a1[0])
	}
}

func TestStatsCounters(t *testing.T) {
	e := reputation.NewEngine()
	e.RecordSuccess("a1", "j1", 50.0)
	e.RecordSuccess("a1", "j2", 50.0)
	e.RecordFailure("a1", "j3", 50.0)

	stats := e.Stats("a1")
	if stats.Total != 3 || stats.Successes != 2 || stats.Failures != 1 {
		t.Errorf("Stats = %+v, want total=3 successes=2 failures=1", stats)
	}
}

func TestLeaderboardOrderAndStability(t *testing.T) {
	e := reputation.NewEngine()
	e.Initialize("first", 50.0)
	e.Initialize("second", 50.0)
	e.Initialize("third", 50.0)

	e.RecordSuccess("third", "j1", 100.0) // 52.0

	board := e.Leaderboard(10)
	if len(board) != 3 {
		t.Fatalf("Leaderboard returned %d entries, want 3", len(board))
	}
	if board[0].AgentID != "third" {
		t.Errorf("Leaderboard[0] = %q, want %q", board[0].AgentID, "third")
	}
	// Tied scores keep first-seen order.
	if board[1].AgentID != "first" || board[2].AgentID != "second" {
		t.Errorf("tie order = [%q %q], want [first second]", board[1].AgentID, board[2].AgentID)
	}

	if got := len(e.Leaderboard(2)); got != 2 {
		t.Errorf("Leaderboard(2) returned %d entries, want 2", got)
	}
}
