/*
Implementation of a Merkle-AVL map: a persistent, authenticated, self-balancing binary search tree, used as a versioned key/value state store.

## Terminology

node: an immutable record holding one key/value pair, the height and rank (subtree size) of the subtree it roots, references to its two children, and (once computed) its content hash

ref: a NodeRef, the only way a subtree is referenced. a ref is either resident in memory (MemRef), known only by content hash and loaded from the store on demand (HashRef), or empty (NoRef)

tree: a root ref plus the TreeContext (marshallers, comparator, hash function, node store) used to interpret it. every update returns a new tree; older trees remain valid and share all unmodified structure

commit: computing content hashes bottom-up and writing every node record which is not already in the store. after a commit the returned tree's root is a HashRef, so resident memory is released

## Content hashes

The hash of a node is H(key bytes ‖ value bytes ‖ left hash ‖ right hash), where key and value bytes come from the context's marshallers and the hash of an empty subtree is the empty string. Marshallers must be deterministic, otherwise equal trees hash differently.

Node records are stored under 0x00 ‖ hash. Committed roots of numbered versions are stored under 0x01 ‖ big-endian version.

## Tricky Bits

Nodes are never mutated after construction. Rotations and deletions build fresh nodes along the modified path only; siblings keep whatever ref they had, so a HashRef sibling is never loaded unless a rotation needs its children.

A HashRef whose record is missing from the store is an error (ErrMissingNode), never an empty subtree.

A rotation which finds an empty child where the heights promise a populated one means the tree is corrupt; this panics with *InvariantViolation rather than returning an error.
*/
package avl
