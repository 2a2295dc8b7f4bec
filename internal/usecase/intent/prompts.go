package intent

// The completion API is told to answer with bare JSON, but models routinely
// wrap it in prose or markdown fences anyway; parse.go digs the object out.

const intentSystemPrompt = `You are a search assistant for a personal website navigation service.
Given a user's search query, analyze what they are looking for.
Respond with a single JSON object, no markdown, no explanations:
{
  "intent": "<one sentence describing what the user wants>",
  "keywords": ["<up to 5 search keywords>"],
  "related_terms": ["<up to 3 related terms worth searching for>"],
  "category_hints": ["<category names likely to contain matches>"]
}`

const intentUserTemplate = `Search query: %q`

const recommendSystemPrompt = `You are a search assistant for a personal website navigation service.
You are given a user's search query, their inferred intent, and a list of candidate websites.
Pick the candidates most relevant to the query and score them.
Respond with a single JSON object, no markdown, no explanations:
{
  "recommendations": [
    {"website_id": <id from the candidate list>, "relevance_score": <0.0-1.0>, "reason": "<one short sentence>"}
  ],
  "summary": "<one sentence summarizing the results>"
}
Only use website_id values that appear in the candidate list. Order recommendations best first.`

const recommendUserTemplate = `Search query: %q
Intent: %s

Candidates (JSON):
%s

Return at most %d recommendations.`
