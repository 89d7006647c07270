// Package chat is the session layer between chat front-ends and the engine.
//
// It maps the three callbacks a chat UI fires (a chat starts, a message arrives,
// an archived chat is reopened) onto engine turns, keeps a thread archive with
// the role/content transcript in its metadata, and re-seeds threads from that
// archive when their checkpoints are gone.
package chat
