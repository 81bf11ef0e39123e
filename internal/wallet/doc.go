// Package wallet talks to the Google Wallet Objects API on behalf of the ticket shop.
//
// It is split into three independent pieces: a Client issuing authenticated REST calls,
// a Builder mapping events and order positions onto EventTicketClass and EventTicketObject
// payloads, and a Synchronizer deciding when a remote class or object is created, updated
// or shredded. The only local state is the object id kept in the position's meta_info
// under the "googlepaypass" key.
package wallet
