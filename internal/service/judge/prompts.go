package judge

const trackASystemPrompt = `You are a strict evaluator for a Retrieval-Augmented Generation benchmark.
You must score based ONLY on the provided QUESTION, REFERENCE_ANSWER, and MODEL_ANSWER.

Scoring Guidelines:
- Do NOT reward writing style or verbosity
- DO reward semantic correctness and factual accuracy
- Compare meaning, not exact wording
- Penalize missing key information
- Penalize incorrect information severely

You MUST return valid JSON only. No markdown, no explanation outside JSON.`

const trackAUserPrompt = `QUESTION:
{question}

REFERENCE_ANSWER:
{reference_answer}

MODEL_ANSWER:
{model_answer}

TASK:
Score the MODEL_ANSWER from 0 to 5 on each dimension:

1. correctness (0-5): Does the answer convey the same factual information as the reference?
   - 5: Perfectly correct, all facts match
   - 3: Mostly correct, minor inaccuracies
   - 1: Significant errors or contradictions
   - 0: Completely wrong

2. completeness (0-5): Does the answer cover all key points from the reference?
   - 5: All key points covered
   - 3: Most points covered, some missing
   - 1: Major points missing
   - 0: Almost nothing relevant

3. specificity (0-5): Does the answer include necessary details (numbers, names, specifics)?
   - 5: All relevant details included
   - 3: Some details, some vague
   - 1: Very vague, lacks specifics
   - 0: No useful details

4. clarity (0-5): Is the answer clear and well-structured?
   - 5: Crystal clear, well-organized
   - 3: Understandable but could be clearer
   - 1: Confusing or poorly structured
   - 0: Incomprehensible

Calculate overall as: (correctness * 0.5) + (completeness * 0.3) + (specificity * 0.1) + (clarity * 0.1)

Return JSON with this exact structure:
{
    "correctness": <int 0-5>,
    "completeness": <int 0-5>,
    "specificity": <int 0-5>,
    "clarity": <int 0-5>,
    "overall": <float 0-5>,
    "short_reason": "<string, max 40 words explaining the score>"
}`

const trackBSystemPrompt = `You are a strict evaluator of groundedness (faithfulness) for RAG systems.
Your job is to verify that EVERY claim in the MODEL_ANSWER is supported by the provided CONTEXTS.

Critical Rules:
- A claim is SUPPORTED only if the context explicitly states it or directly implies it
- A claim is UNSUPPORTED if it requires outside knowledge not in the contexts
- A claim is a HALLUCINATION if it contradicts the contexts
- Ignore formatting and style - focus only on factual claims

You MUST return valid JSON only. No markdown, no explanation outside JSON.`

const trackBUserPrompt = `QUESTION:
{question}

CONTEXTS:
{numbered_contexts}

MODEL_ANSWER:
{model_answer}

TASK:
Evaluate the MODEL_ANSWER for groundedness in the provided CONTEXTS.

Score from 0 to 5 on each dimension:

1. context_support (0-5): Are the claims in the answer supported by the contexts?
   - 5: Every claim is directly supported
   - 3: Most claims supported, some require inference
   - 1: Few claims supported
   - 0: No claims supported

2. hallucination (0-5): How free is the answer from unsupported/contradicted claims?
   - 5: No hallucinations whatsoever
   - 3: Minor unsupported details that don't affect accuracy
   - 1: Significant unsupported claims
   - 0: Major hallucinations or contradictions

3. citation_quality (0-5): Could the claims be traced back to specific contexts?
   - 5: Every claim clearly attributable to specific context
   - 3: Most claims attributable
   - 1: Vague, hard to trace
   - 0: Cannot determine source of claims

Calculate overall_groundedness as average of the three scores.

Identify up to 3 specific unsupported claims (short phrases only).

Return JSON with this exact structure:
{
    "context_support": <int 0-5>,
    "hallucination": <int 0-5>,
    "citation_quality": <int 0-5>,
    "overall_groundedness": <float 0-5>,
    "unsupported_claims": ["<claim 1>", "<claim 2>", ...],
    "short_reason": "<string, max 40 words>"
}`
