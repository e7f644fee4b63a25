package prompts

// ============================================================================
// Recognition Prompts (Vision Language Model)
// ============================================================================

// TranscribeSystemPrompt defines the role for document transcription.
const TranscribeSystemPrompt = `You are a document transcription engine. You copy the text of scanned
identity, financial and official documents exactly as printed. You never
summarise, translate, correct or explain.`

// TranscribeUserPrompt instructs the model to output only the recognized text.
const TranscribeUserPrompt = `Transcribe every piece of text visible in this document image.

Rules:
- Keep the original reading order and line breaks.
- Keep labels next to their values on the same line (e.g. "Passport No: AB123456").
- Copy numbers, dates and currency symbols exactly.
- Skip decorative elements, stamps without text and background patterns.
- Do not add any preface, commentary or markdown.
- If the image contains no text, output an empty string.`

// TranscribeMaxTokens bounds the completion length of a transcription.
const TranscribeMaxTokens = 2000
