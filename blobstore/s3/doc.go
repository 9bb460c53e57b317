// Package s3 provides blobstore.Store implementations on Amazon S3.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "indexes/")
//	err = idx.Save(ctx, store, "products.voy")
//
// # Features
//
//   - Range reads, fetched in parallel by blobstore.ReadAll
//   - Multipart uploads for large indexes
//   - Automatic pagination for listing
//   - CommitStore: DynamoDB-coordinated versions so concurrent writers of
//     one name cannot silently overwrite each other
package s3
