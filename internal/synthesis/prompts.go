package synthesis

const extractorPrompt = `You find actionable items in free text such as meeting notes or chat transcripts.
An actionable item uses imperative language, names an owner and an action, carries a deadline,
or is marked as an action item or checklist entry.
Copy every item verbatim as a contiguous span of the input. Never paraphrase, reorder or merge spans.
When one sentence joins two distinct actions with a conjunction, return each action as its own span.
Skip informational statements and things already done. Return an empty list when nothing is actionable.`

const synthesizerPrompt = `You turn one actionable snippet into a task.
title: at most %d characters, starts with a verb, faithful to the snippet.
description: one to three sentences. Do not invent facts.
priority: high, medium or low, from explicit urgency or deadline language. Use low when there is no signal.
category: one of the given categories, or %q when none fits. Never invent a category.
assignees: only members from the given list who are explicitly named in the snippet. Empty when none are.`
