package types

// Block is the unit the block layer hands to the state engine. The block
// layer (gossip, ordering, consensus) is an external collaborator (spec §1,
// §6); the engine only ever receives an already-confirmed Block and decides
// whether to apply it.
type Block struct {
	ID           [32]byte
	Timestamp    uint64
	Transactions []*Transaction
}
