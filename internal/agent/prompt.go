package agent

import (
	"fmt"
	"strings"
)

// buildSystemPrompt assembles the system message for a chat turn. The
// prompt names each available tool so the model knows what it can reach
// for, and sets the guardrails the stream filter depends on.
func buildSystemPrompt(hasResume bool, toolNames []string) string {
	var b strings.Builder

	b.WriteString("You are a career assistant helping a candidate improve their resume and job search. ")
	b.WriteString("Be concrete and honest; prefer specific advice over generic encouragement.\n\n")

	if len(toolNames) > 0 {
		b.WriteString("You can call these tools: ")
		b.WriteString(strings.Join(toolNames, ", "))
		b.WriteString(". Use resume_lookup before answering questions about the candidate's background, ")
		b.WriteString("and ats_score when asked about resume scoring. ")
		b.WriteString("Never describe a tool call to the user; call it.\n\n")
	}

	if hasResume {
		b.WriteString("The candidate has uploaded a resume in this conversation. Ground answers in its actual content.\n")
	} else {
		b.WriteString("No resume has been uploaded in this conversation. If a question needs resume content, ask the candidate to upload one.\n")
	}

	b.WriteString("After using tools, start your answer directly, for example with \"Based on\" or \"Here is\".")
	return b.String()
}

// analysisSummary renders an AnalysisResult as the assistant message shown
// to the user after an upload or explicit analysis request.
func analysisSummary(r *AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "I analyzed your resume. ATS compatibility score: %d/100.\n\n", r.Score)
	fmt.Fprintf(&b, "Breakdown:\n")
	fmt.Fprintf(&b, "- Technical keywords: %d/35\n", r.Breakdown.Technical)
	fmt.Fprintf(&b, "- Soft skills: %d/20\n", r.Breakdown.Soft)
	fmt.Fprintf(&b, "- Action verbs: %d/15\n", r.Breakdown.Verbs)
	fmt.Fprintf(&b, "- Formatting: %d/30\n", r.Breakdown.Formatting)

	if len(r.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "\nMatched keywords: %s\n", strings.Join(r.MatchedKeywords, ", "))
	}
	if r.ExperienceYears > 0 {
		fmt.Fprintf(&b, "Estimated experience: %.1f years\n", r.ExperienceYears)
	}
	if r.EducationSummary != "" {
		fmt.Fprintf(&b, "Education: %s\n", r.EducationSummary)
	}

	if len(r.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	b.WriteString("\nAsk me anything about your resume, or ask for job search help.")
	return b.String()
}

// noResumeMessage is the instructive reply when analysis is requested but
// nothing has been uploaded.
const noResumeMessage = "I don't have a resume for this conversation yet. Upload a PDF resume and I'll analyze it, score it for ATS compatibility, and suggest improvements."

// apologyMessage is the single reply used when the inference backend
// fails mid-turn.
const apologyMessage = "Sorry, I ran into a problem generating a response just now. Please try again in a moment."
