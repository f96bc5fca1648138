package mcpserver

// BlockAlgebraContract describes the canonical block and document operations
// that LLM consumers should follow when building knowledge with Othala.
const BlockAlgebraContract = `# Othala Block Algebra Contract

Othala stores knowledge as immutable blocks combined through a small algebra.
Follow these rules when creating, deriving, or computing blocks.

## Identifiers

- ` + "`" + `kbb_...` + "`" + ` is a block: one immutable unit of text with lineage.
- ` + "`" + `kbn_...` + "`" + ` is a family: every version of one piece of knowledge shares it.
- ` + "`" + `kbd_...` + "`" + ` is a document: an ordered list of block references.

## Operations

` + "```" + `
create(content)              -> new block, new family, no parents
edit(block, content)         -> new block, SAME family, one parent
sum(block, block, ...)       -> new block, new family, 2+ parents
subtract(minuend, subtrahend)-> new block, new family, exactly 2 parents
` + "```" + `

1. **Blocks never change.** Every operation mints a new block; the inputs stay
   exactly as they were.
2. **Edit keeps the family.** Successive edits of one idea form a version
   chain inside one ` + "`" + `kbn_` + "`" + ` family. All other operations start a fresh family.
3. **Sum and subtract are deferred.** The result starts ` + "`" + `uncomputed` + "`" + ` and has
   no content until you compute it.

## Computing

- ` + "`" + `compute_block` + "`" + ` finalizes a block exactly once; a second compute fails.
- Leaf blocks (create/edit) keep their literal content and gain a timestamp.
- Derived blocks (sum/subtract) get merged content produced from their
  parents. Uncomputed parents are computed first, automatically.
- Sum merges sources oldest-computed first, so newer knowledge lands last and
  wins ties. Subtract always reads [minuend, subtrahend].
- A merge may surface a ` + "`" + `conflict` + "`" + ` annotation when sources contradict each
  other. The block still computes; inspect the annotation.
- ` + "`" + `recompute_block` + "`" + ` replays a computed block's lineage against the latest
  computed version of every source family and returns a NEW block in the same
  family. Use it after editing a source of an existing merge.

## Documents

- A document references blocks by id, ordered and deduplicated. It never owns
  content.
- ` + "`" + `document_add` + "`" + ` appends a block; adding a block twice is a no-op.
- With ` + "`" + `smart=true` + "`" + `, blocks already in the document that semantically overlap
  the newcomer are folded: they are summed with the new block, computed, and
  replaced by the merged result at the end of the document.
- Every mutation appends to the document's operation log; read it with
  ` + "`" + `document_log` + "`" + `.

## Workflow example

1. ` + "`" + `create_block` + "`" + ` "Mercury is the closest planet to the Sun."
2. ` + "`" + `create_block` + "`" + ` "Mercury has no moons."
3. ` + "`" + `sum_blocks` + "`" + ` with both ids returns an uncomputed block.
4. ` + "`" + `compute_block` + "`" + ` on the sum returns merged content.
5. ` + "`" + `edit_block` + "`" + ` the first block with a correction, ` + "`" + `compute_block` + "`" + ` it.
6. ` + "`" + `recompute_block` + "`" + ` on the sum mints a new merge over the corrected version.
`
