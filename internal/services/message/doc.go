// Package message sends, assembles and clears direct messages.
//
// Every message is published twice into the sender's slot of the log: the
// primary record sealed to the recipient and a self-copy sealed to the
// sender. The self-copy is a background task; the send succeeds once the
// primary write lands.
//
// A transcript is assembled client-side from the two participants' slots:
// rows are decoded, collapsed by record id, filtered to the conversation,
// stripped of soft-deleted records, paired (a self-copy replaces the
// unreadable primary at the same timestamp), sorted by timestamp and
// decrypted. Entries that cannot be decrypted keep their position and carry
// a placeholder.
package message
