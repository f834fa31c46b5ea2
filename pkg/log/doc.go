/*
Package log provides structured logging for graphd using zerolog.

The global zerolog.Logger is configured once via Init and then every
component obtains a child logger carrying its own fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	storeLog := log.WithComponent("store")
	storeLog.Info().Str("file", "L0-0000000042.sst").Msg("flush complete")

WithSnapshot, WithTxn, WithCommit and WithFile attach the identifiers most
often needed when diagnosing mvcc and store behaviour; they compose with
WithComponent the same way:

	log.WithComponent("mvcc").With().Uint64("snapshot_seq", 7).Logger()
*/
package log
