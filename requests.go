// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

import (
	"maps"
	"strings"
)

// OperationRequest is a typed operation input that can be flattened into a Context.
type OperationRequest interface {
	Operation() Operation
	Vars() Context
}

// HelpRequest asks for contextual help on the current lab step.
type HelpRequest struct {
	LabTitle    string
	StepNumber  int
	StepTitle   string
	Instruction string
	Question    string
	UserLevel   string
	Extra       Context
}

func (r HelpRequest) Operation() Operation { return OperationContextualHelp }

func (r HelpRequest) Vars() Context {
	return withExtra(r.Extra, Context{
		"lab_title":   r.LabTitle,
		"step":        r.StepNumber,
		"step_title":  r.StepTitle,
		"instruction": r.Instruction,
		"question":    r.Question,
		"user_level":  r.UserLevel,
	})
}

// ConfigurationAnalysisRequest asks for a review of a device configuration.
type ConfigurationAnalysisRequest struct {
	DeviceType    string
	DeviceName    string
	Configuration string
	Objectives    string
	Extra         Context
}

func (r ConfigurationAnalysisRequest) Operation() Operation { return OperationConfigurationAnalysis }

func (r ConfigurationAnalysisRequest) Vars() Context {
	return withExtra(r.Extra, Context{
		"device_type":   r.DeviceType,
		"device_name":   r.DeviceName,
		"configuration": r.Configuration,
		"objectives":    r.Objectives,
	})
}

// ErrorExplanationRequest asks for an explanation of a device or lab error.
type ErrorExplanationRequest struct {
	ErrorMessage string
	Command      string
	DeviceType   string
	Extra        Context
}

func (r ErrorExplanationRequest) Operation() Operation { return OperationErrorExplanation }

func (r ErrorExplanationRequest) Vars() Context {
	return withExtra(r.Extra, Context{
		"error_message": r.ErrorMessage,
		"command":       r.Command,
		"device_type":   r.DeviceType,
	})
}

// HintRequest asks for progressive hints for a lab step.
type HintRequest struct {
	LabTitle   string
	StepNumber int
	Objective  string
	Attempts   int
	HintLevel  int
	Extra      Context
}

func (r HintRequest) Operation() Operation { return OperationHintGeneration }

func (r HintRequest) Vars() Context {
	return withExtra(r.Extra, Context{
		"lab_title":  r.LabTitle,
		"step":       r.StepNumber,
		"objective":  r.Objective,
		"attempts":   r.Attempts,
		"hint_level": r.HintLevel,
	})
}

// Message is a single turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a free chat turn with optional history.
type ChatRequest struct {
	Message  string
	History  []Message
	LabTitle string
	Extra    Context
}

func (r ChatRequest) Operation() Operation { return OperationChat }

func (r ChatRequest) Vars() Context {
	return withExtra(r.Extra, Context{
		"message":   r.Message,
		"history":   FormatHistory(r.History),
		"lab_title": r.LabTitle,
	})
}

// FormatHistory renders a conversation as "role: content" lines.
func FormatHistory(history []Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func withExtra(extra, vars Context) Context {
	out := make(Context, len(extra)+len(vars))
	maps.Copy(out, extra)
	maps.Copy(out, vars)
	return out
}
