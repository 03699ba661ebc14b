package graphql

import "github.com/graphql-go/graphql"

var (
	// uint64 values are exposed as decimal strings
	bigIntType = graphql.String

	blockStatsType = graphql.NewObject(graphql.ObjectConfig{
		Name:        "BlockStats",
		Description: "Per-category transaction counts and resource totals of a block",
		Fields: graphql.Fields{
			"transfers":               &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"tokenTransfers":          &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"delegations":             &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"undelegations":           &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"tokenCreations":          &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"contractCalls":           &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"contractCreations":       &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"stakes":                  &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"votes":                   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"unknown":                 &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"unclassified":            &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"failed":                  &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"transferredSun":          &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"delegatedEnergySun":      &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"delegatedBandwidthSun":   &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"undelegatedEnergySun":    &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"undelegatedBandwidthSun": &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
		},
	})

	blockType = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Block",
		Description: "A processed block row",
		Fields: graphql.Fields{
			"number":           &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"id":               &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"parentHash":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"producer":         &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"timestamp":        &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"transactionCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"processedAt":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"stats":            &graphql.Field{Type: graphql.NewNonNull(blockStatsType)},
		},
	})

	syncStatusType = graphql.NewObject(graphql.ObjectConfig{
		Name:        "SyncStatus",
		Description: "Sync progress derived on demand",
		Fields: graphql.Fields{
			"currentBlock":              &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"networkBlock":              &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"lag":                       &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"backfillQueueSize":         &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"isHealthy":                 &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"isKeepingUp":               &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"estimatedCatchUpSeconds":   &graphql.Field{Type: graphql.Float},
			"processingBlocksPerMinute": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"networkBlocksPerMinute":    &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"averageDelaySeconds":       &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"lastError":                 &graphql.Field{Type: graphql.String},
			"lastErrorAt":               &graphql.Field{Type: graphql.String},
			"lastProcessedAt":           &graphql.Field{Type: graphql.String},
			"phase":                     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})
)
