// Package commands defines the cipherlog CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init <address>          Create (if needed) and register a key pair
//   - fingerprint             Print the key fingerprint
//   - send <peer> <message>   Encrypt and send a direct message
//   - read <peer>             Print the conversation, optionally following it
//   - delete <record-id>      Soft-delete one of your messages
//   - clear <peer>            Soft-delete every message you sent to a peer
//   - group ...               Create groups, share keys, send and read
//   - keys export|import      Passphrase-protected key backup
//   - reset                   Delete the local key pair
//
// # Implementation
//
// The root command loads configuration (TOML file, .env, CIPHERLOG_*
// variables, then flags) and builds the dependency graph before any
// subcommand runs. The key store is unlocked with -p or $CIPHERLOG_PASSPHRASE;
// key backups use -b and default to the same passphrase. The graph is closed after the subcommand returns, which
// waits briefly for background self-copy and key-share writes.
package commands
