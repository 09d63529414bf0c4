// Package flat provides an exact in-memory vector index for one session.
//
// Search scores every stored vector by cosine similarity, so results are
// always the true top k. Session indexes are rebuilt from the embeddings
// held in the session snapshot whenever they are loaded.
package flat
