package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHomeworkRequirementsRoundTripThroughJSONColumn(t *testing.T) {
	homework := Homework{}
	homework.SetRequirements([]Requirement{
		{Task: "post", Quantity: 3, Metric: "posts"},
		{Task: "comment", Quantity: 50, Metric: "comments"},
	})
	homework.SetInstructions([]Instruction{{Task: "post", Steps: []string{"film", "edit", "publish"}}})

	requirements := homework.RequirementList()
	require.Len(t, requirements, 2)
	require.Equal(t, "comments", requirements[1].Metric)
	require.True(t, homework.TracksMetric("posts"))
	require.False(t, homework.TracksMetric("likes"))
	require.Equal(t, []string{"film", "edit", "publish"}, homework.InstructionList()[0].Steps)
}

func TestPercentCompleteCapsAtHundred(t *testing.T) {
	requirement := Requirement{Task: "post", Quantity: 3, Metric: "posts"}

	require.Equal(t, 0, PercentComplete(requirement, map[string]int64{}))
	require.Equal(t, 33, PercentComplete(requirement, map[string]int64{"posts": 1}))
	require.Equal(t, 100, PercentComplete(requirement, map[string]int64{"posts": 7}))
	require.Equal(t, 100, PercentComplete(Requirement{Metric: "x"}, nil))
	require.Equal(t, 100, PercentComplete(requirement, map[string]int64{"posts": math.MaxInt64 / 50}))
	require.Equal(t, 100, PercentComplete(requirement, map[string]int64{"posts": math.MaxInt64}))
}

func TestRequirementsMet(t *testing.T) {
	requirements := []Requirement{
		{Task: "post", Quantity: 3, Metric: "posts"},
		{Task: "comment", Quantity: 50, Metric: "comments"},
	}

	require.False(t, RequirementsMet(requirements, map[string]int64{"posts": 3}))
	require.False(t, RequirementsMet(requirements, map[string]int64{"posts": 2, "comments": 50}))
	require.True(t, RequirementsMet(requirements, map[string]int64{"posts": 3, "comments": 50}))
	require.True(t, RequirementsMet(nil, nil))
}

func TestEvidenceListDefaultsToEmpty(t *testing.T) {
	submission := HomeworkSubmission{}
	require.Empty(t, submission.EvidenceList())

	submission.SetEvidence([]string{"https://a", "https://b"})
	require.Equal(t, []string{"https://a", "https://b"}, submission.EvidenceList())
}

func TestFlowMatchesPerTriggerType(t *testing.T) {
	keywordFlow := AutomationFlow{TriggerType: TriggerCommentKeyword, IsActive: true}
	keywordFlow.SetKeywords([]string{" Book ", "book", "CLASS"})
	require.Equal(t, []string{"book", "class"}, keywordFlow.KeywordList())
	require.True(t, keywordFlow.Matches("Can I BOOK a trial?"))
	require.False(t, keywordFlow.Matches("nice reel"))

	emptyKeywordFlow := AutomationFlow{TriggerType: TriggerDMKeyword, IsActive: true}
	require.False(t, emptyKeywordFlow.Matches("anything"))

	reactionFlow := AutomationFlow{TriggerType: TriggerStoryReaction, IsActive: true}
	require.True(t, reactionFlow.Matches(""))

	inactive := AutomationFlow{TriggerType: TriggerAdClick, IsActive: false}
	require.False(t, inactive.Matches("ad"))

	unknown := AutomationFlow{TriggerType: TriggerType("carrier_pigeon"), IsActive: true}
	require.False(t, unknown.Matches("hello"))
}

func TestParseTriggerTypeAndKind(t *testing.T) {
	trigger, ok := ParseTriggerType(" Story_Reply ")
	require.True(t, ok)
	require.Equal(t, TriggerStoryReply, trigger)
	require.False(t, trigger.RequiresKeywords())
	require.True(t, TriggerDMKeyword.RequiresKeywords())

	_, ok = ParseTriggerType("fax")
	require.False(t, ok)

	kind, ok := ParseAttributionKind("CONVERSION")
	require.True(t, ok)
	require.Equal(t, AttributionConversion, kind)

	_, ok = ParseAttributionKind("view")
	require.False(t, ok)
}
