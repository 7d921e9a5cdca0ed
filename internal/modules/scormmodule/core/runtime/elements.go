package runtime

import "strings"

// element is one supported data model element. A nil set makes it read only.
type element struct {
	get func(s *Session) string
	set func(s *Session, value string) ErrorCode
}

// SCORM 1.2 lesson_status vocabulary mapped onto the completion status
var lessonStatusIn = map[string]CompletionStatus{
	"not attempted": StatusUnknown,
	"browsed":       StatusIncomplete,
	"incomplete":    StatusIncomplete,
	"completed":     StatusCompleted,
	"passed":        StatusPassed,
	"failed":        StatusFailed,
}

var lessonStatusOut = map[CompletionStatus]string{
	StatusUnknown:    "not attempted",
	StatusIncomplete: "incomplete",
	StatusCompleted:  "completed",
	StatusPassed:     "passed",
	StatusFailed:     "failed",
}

var elements map[string]element

func init() {
	learnerName := element{get: func(s *Session) string { return s.opts.LearnerName }}
	learnerID := element{get: func(s *Session) string { return s.opts.LearnerID }}

	elements = map[string]element{
		"cmi._version": {get: func(*Session) string { return DataModelVersion }},

		"cmi.completion_status": {
			get: func(s *Session) string { return string(s.effectiveStatus()) },
			set: func(s *Session, v string) ErrorCode {
				status, ok := parseCompletionStatus(v)
				if !ok {
					return DataModelElementTypeMismatch
				}
				s.status = status
				return NoError
			},
		},

		"cmi.core.lesson_status": {
			get: func(s *Session) string { return lessonStatusOut[s.effectiveStatus()] },
			set: func(s *Session, v string) ErrorCode {
				status, ok := lessonStatusIn[v]
				if !ok {
					return DataModelElementTypeMismatch
				}
				s.status = status
				return NoError
			},
		},

		"cmi.core.student_name": learnerName,
		"cmi.learner_name":      learnerName,
		"cmi.core.student_id":   learnerID,
		"cmi.learner_id":        learnerID,
	}
}

// definedNames lists the SCORM 1.2 and 2004 data model elements this host
// knows of but does not track. Collection indexes are written as "n".
var definedNames = map[string]bool{}

func init() {
	for _, name := range []string{
		// SCORM 2004
		"cmi.comments_from_learner._children", "cmi.comments_from_learner._count",
		"cmi.comments_from_learner.n.comment", "cmi.comments_from_learner.n.location",
		"cmi.comments_from_learner.n.timestamp",
		"cmi.comments_from_lms._children", "cmi.comments_from_lms._count",
		"cmi.comments_from_lms.n.comment", "cmi.comments_from_lms.n.location",
		"cmi.comments_from_lms.n.timestamp",
		"cmi.completion_threshold", "cmi.credit", "cmi.entry", "cmi.exit",
		"cmi.interactions._children", "cmi.interactions._count",
		"cmi.interactions.n.id", "cmi.interactions.n.type",
		"cmi.interactions.n.objectives._count", "cmi.interactions.n.objectives.n.id",
		"cmi.interactions.n.timestamp", "cmi.interactions.n.time",
		"cmi.interactions.n.correct_responses._count",
		"cmi.interactions.n.correct_responses.n.pattern",
		"cmi.interactions.n.weighting", "cmi.interactions.n.learner_response",
		"cmi.interactions.n.student_response", "cmi.interactions.n.result",
		"cmi.interactions.n.latency", "cmi.interactions.n.description",
		"cmi.launch_data",
		"cmi.learner_preference._children", "cmi.learner_preference.audio_level",
		"cmi.learner_preference.language", "cmi.learner_preference.delivery_speed",
		"cmi.learner_preference.audio_captioning",
		"cmi.location", "cmi.max_time_allowed", "cmi.mode",
		"cmi.objectives._children", "cmi.objectives._count", "cmi.objectives.n.id",
		"cmi.objectives.n.score._children", "cmi.objectives.n.score.scaled",
		"cmi.objectives.n.score.raw", "cmi.objectives.n.score.min",
		"cmi.objectives.n.score.max", "cmi.objectives.n.success_status",
		"cmi.objectives.n.completion_status", "cmi.objectives.n.progress_measure",
		"cmi.objectives.n.description", "cmi.objectives.n.status",
		"cmi.progress_measure", "cmi.scaled_passing_score",
		"cmi.score._children", "cmi.score.scaled", "cmi.score.raw",
		"cmi.score.min", "cmi.score.max",
		"cmi.session_time", "cmi.success_status", "cmi.suspend_data",
		"cmi.time_limit_action", "cmi.total_time", "adl.nav.request",

		// SCORM 1.2
		"cmi.core._children", "cmi.core.lesson_location", "cmi.core.credit",
		"cmi.core.entry", "cmi.core.score._children", "cmi.core.score.raw",
		"cmi.core.score.min", "cmi.core.score.max", "cmi.core.total_time",
		"cmi.core.lesson_mode", "cmi.core.exit", "cmi.core.session_time",
		"cmi.comments",
		"cmi.student_data._children", "cmi.student_data.mastery_score",
		"cmi.student_data.max_time_allowed", "cmi.student_data.time_limit_action",
		"cmi.student_preference._children", "cmi.student_preference.audio",
		"cmi.student_preference.language", "cmi.student_preference.speed",
		"cmi.student_preference.text",
	} {
		definedNames[name] = true
	}
}

// isDefinedName reports whether name belongs to a SCORM data model even
// though no element serves it
func isDefinedName(name string) bool {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = "n"
		}
	}
	return definedNames[strings.Join(parts, ".")]
}
