package prompt

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"contentAnalysis.md":       contentAnalysisTemplate,
	"knowledgeRetrieval.md":    knowledgeRetrievalTemplate,
	"analogyGeneration.md":     analogyGenerationTemplate,
	"analogyValidation.md":     analogyValidationTemplate,
	"analogyRefinement.md":     analogyRefinementTemplate,
	"explanation.md":           explanationTemplate,
	"repositoryAnalysis.md":    repositoryAnalysisTemplate,
	"healthSummary.md":         healthSummaryTemplate,
	"workflowSummary.md":       workflowSummaryTemplate,
	"feedbackIncorporation.md": feedbackTemplate,
}

// Builtin returns the named built-in template without touching disk.
func Builtin(name string) (string, bool) {
	tmpl, ok := builtinTemplates[name]
	return tmpl, ok
}

const contentAnalysisTemplate = `# Content Analysis

Analyze the following material and extract the concepts a newcomer would need
explained before they could understand it.

## Input
{{content}}

{{#if audience}}
## Audience
{{audience}}
{{/if}}

## Instructions
1. Identify the core technical concepts, in order of importance
2. For each concept, note what background knowledge it assumes
3. Flag jargon and abbreviations that need expansion
4. Summarize the overall subject in two or three sentences

Produce the concept list first, then the summary.
`

const knowledgeRetrievalTemplate = `# Knowledge Retrieval

Gather the background knowledge needed to explain the concepts identified below.

## Identified Concepts
{{content}}

{{#if sources}}
## Available Source Material
{{sources}}
{{/if}}

## Instructions
1. For each concept, state the minimal accurate definition
2. Note common misconceptions worth heading off
3. Identify everyday domains (cooking, traffic, sports, plumbing) that share
   structure with each concept, as raw material for analogies

List the concepts with their definitions and candidate analogy domains.
`

const analogyGenerationTemplate = `# Analogy Generation

Create analogies that make the concepts below intuitive to a non-expert.

## Concepts and Background
{{content}}

{{#if audience}}
## Audience
{{audience}}
{{/if}}

## Instructions
1. For each major concept, propose one primary analogy from everyday life
2. Map the parts of the analogy explicitly onto the parts of the concept
3. Prefer analogies the audience already understands deeply
4. Avoid analogies that break down on the concept's most important property

Write each analogy as: concept, analogy, explicit mapping.
`

const analogyValidationTemplate = `# Analogy Validation

Check the analogies below for places where they mislead.

## Proposed Analogies
{{content}}

## Instructions
1. For each analogy, test it against the concept's defining properties
2. Identify where the analogy breaks down and what wrong conclusion a
   reader might draw from it
3. Rate each analogy: sound, usable-with-caveat, or misleading
4. For usable-with-caveat analogies, state the caveat a reader must be given

Report the rating and breakdown points for every analogy.
`

const analogyRefinementTemplate = `# Analogy Refinement

Improve the analogies using the validation findings below.

## Analogies and Validation Findings
{{content}}

## Instructions
1. Replace any analogy rated misleading with a better one
2. Attach the required caveats to usable-with-caveat analogies
3. Tighten the mappings: every named part of the analogy must correspond
   to a named part of the concept
4. Keep analogies short enough to hold in working memory

Output the final refined analogy set.
`

const explanationTemplate = `# Explanation

Write the final explanation using the refined analogies below.

## Refined Analogies and Concept Background
{{content}}

{{#if audience}}
## Audience
{{audience}}
{{/if}}

{{#if feedback}}
## Reviewer Feedback to Incorporate
{{feedback}}
{{/if}}

## Instructions
1. Open with a one-paragraph plain-language summary of the subject
2. Explain each concept using its analogy, then restate it precisely
3. Include the caveats identified during validation
4. Close with a short recap a reader could repeat back

Write the explanation as flowing prose with section headings.
`

const repositoryAnalysisTemplate = `# Repository Change Analysis

New commits were detected in the monitored repository. Review the changes
and their scan findings.

## Change Report
{{content}}

## Instructions
1. Summarize what the changed files suggest about the work being done
2. Comment on each scan finding: real concern, likely false positive, or
   needs human judgment
3. Recommend follow-up actions in priority order

Keep the analysis short and actionable.
`

const healthSummaryTemplate = `# Health Check

You are monitoring a running analysis workflow. Given the state below,
report whether anything looks wrong.

## Current State
{{content}}

## Instructions
Reply with a one-line assessment. Start the line with "ok" if the workflow
looks healthy. Start with "stalled", "error", or "anomaly" followed by a
short reason if something is off.
`

const workflowSummaryTemplate = `# Workflow Summary

Summarize the completed analysis run below for the activity journal.

## Final Output
{{content}}

## Instructions
Write two or three sentences: what was explained, which analogies carried
the explanation, and anything a reviewer changed along the way.
`

const feedbackTemplate = `# Feedback Incorporation

A reviewer left feedback on the explanation below. Revise it accordingly.

## Current Explanation
{{content}}

## Feedback
{{feedback}}

## Instructions
1. Address every point in the feedback
2. Preserve the parts of the explanation the feedback does not touch
3. Do not introduce new analogies unless the feedback asks for one

Output the full revised explanation.
`
