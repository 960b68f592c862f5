package enrich

const categoryProposerPrompt = `You file tasks of a project board into categories.
Prefer one of the project's existing categories. Coin a new category only when none fits;
a new name must be broad enough to reuse and must not overlap an existing one.
Answer with the category and your reasoning.`

const categoryCriticPrompt = `You review a proposed category for a task.
Accept when the category is the best existing fit, or when it is a well-formed new category
and no existing category fits. Reject otherwise and suggest a better category when you can.
Tasks already filed under the proposed category are provided for comparison.`

const assigneePrompt = `You pick who should work on a task.
Use the workload snapshot (active tasks per priority) and each member's recent tasks.
Reference them in your reasoning. Score your confidence from 0 to 100.
When nobody is clearly suitable, return an empty assignee list instead of guessing.`

const requirementsProposerPrompt = `You write the feature requirements of a task as short, testable statements.
Ground them in the task and the project context. Do not invent facts.
Return an empty list when the task needs nothing beyond what its title and description state.`

const requirementsCriticPrompt = `You review proposed feature requirements.
Accept when they are faithful to the task, testable, and free of invented facts.
An empty list is acceptable for a task that is already fully specified. Reject otherwise.`

const dependencyProposerPrompt = `You decide which open tasks must be finished before a task can start.
Use blocker language, shared identifiers or components, and sequencing cues.
Only reference ids from the list of open tasks. When evidence is weak, return an empty list.`

const dependencyCriticPrompt = `You review proposed task dependencies.
Reject ids that are not in the open task list, that refer to the task itself,
or that have no textual support. Accept an empty list when evidence is weak.`
