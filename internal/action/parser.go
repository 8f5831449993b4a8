// Package action extracts machine directives from model output.
//
// # Overview
//
// The model is prompted to emit fenced blocks for side effects it wants the
// host to perform:
//
//	```cron
//	{"schedule": "*/5 * * * *", "task": "joke", "message": "Tell me a joke"}
//	```
//
//	```save:notes.txt
//	...file content...
//	```
//
//	```memory
//	The user's name is Alex.
//	```
//
// Parsing is tolerant: one malformed block never swallows the others in the
// same response. Schedule blocks collect per-block error strings alongside
// the blocks that did parse; the caller decides how to surface them.
//
// All functions here are stateless and safe for concurrent use.
package action

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ScheduleRequest is a parsed cron block: a request to run a recurring job
// that delivers Message when the Schedule fires.
type ScheduleRequest struct {
	Schedule string
	Task     string
	Message  string
}

// SaveRequest is a parsed save block. Filename is taken verbatim from the
// fence tag; path safety is the workspace's problem, not the parser's.
type SaveRequest struct {
	Filename string
	Content  string
}

// CodeBlock is any fenced block with its declared language.
type CodeBlock struct {
	Lang    string
	Content string
}

var (
	reCron   = regexp.MustCompile("(?s)```cron[^\\S\n]*\n(.*?)\n\\s*```")
	reSave   = regexp.MustCompile("(?s)```save:(\\S+)[^\\S\n]*\n(.*?)\n\\s*```")
	reMemory = regexp.MustCompile("(?s)```memory[^\\S\n]*\n(.*?)\n\\s*```")
	reCode   = regexp.MustCompile("(?s)```(\\w+)?[^\\S\n]*\n(.*?)\n\\s*```")
)

// requiredCronKeys is the JSON contract for a cron block, in reporting order.
var requiredCronKeys = []string{"schedule", "task", "message"}

// ParseScheduleBlocks scans text for cron blocks and decodes each body as a
// JSON object. Malformed blocks are skipped and reported as error strings;
// the two slices are independent (a response can yield both).
func ParseScheduleBlocks(text string) ([]ScheduleRequest, []string) {
	var reqs []ScheduleRequest
	var errs []string

	for _, m := range reCron.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])

		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			errs = append(errs, "Invalid JSON in cron block")
			continue
		}

		var missing []string
		for _, k := range requiredCronKeys {
			if _, ok := obj[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			errs = append(errs, "Missing required fields: "+strings.Join(missing, ", "))
			continue
		}

		schedule, _ := obj["schedule"].(string)
		if len(strings.Fields(schedule)) != 5 {
			errs = append(errs, "Invalid cron format '"+schedule+"' - needs 5 fields (minute hour day month weekday)")
			continue
		}

		task, _ := obj["task"].(string)
		message, _ := obj["message"].(string)
		reqs = append(reqs, ScheduleRequest{Schedule: schedule, Task: task, Message: message})
	}

	return reqs, errs
}

// ParseSaveBlocks returns every save block with its filename and verbatim body.
func ParseSaveBlocks(text string) []SaveRequest {
	var reqs []SaveRequest
	for _, m := range reSave.FindAllStringSubmatch(text, -1) {
		reqs = append(reqs, SaveRequest{Filename: m[1], Content: m[2]})
	}
	return reqs
}

// ParseMemoryBlocks returns the trimmed body of every memory block,
// dropping bodies that are empty after trimming.
func ParseMemoryBlocks(text string) []string {
	var facts []string
	for _, m := range reMemory.FindAllStringSubmatch(text, -1) {
		fact := strings.TrimSpace(m[1])
		if fact == "" {
			continue
		}
		facts = append(facts, fact)
	}
	return facts
}

// ExtractCodeBlocks returns every fenced block with its declared language,
// defaulting to "text" when the fence carries no tag. Directive blocks with
// word-shaped tags (cron, memory) are included; callers that want only
// displayable code should run CleanResponse first.
func ExtractCodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	for _, m := range reCode.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Lang: lang, Content: strings.TrimSpace(m[2])})
	}
	return blocks
}

// CleanResponse strips all cron, save and memory blocks from text, leaving
// prose and ordinary code blocks intact. This is what the user actually sees;
// directive blocks are never displayed raw.
func CleanResponse(text string) string {
	out := reCron.ReplaceAllString(text, "")
	out = reSave.ReplaceAllString(out, "")
	out = reMemory.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
