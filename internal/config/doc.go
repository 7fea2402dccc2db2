// Package config provides configuration parsing for propgen projects.
//
// The configuration is stored in propgen.yaml at the project root. JSON is
// accepted as well. Every setting is optional.
//
// # Configuration File Structure
//
//	patterns: ["./..."]
//	exclude: ["internal/legacy/**"]
//	concurrency: 4
//	store:
//	  import: github.com/vango-dev/propstore
//	  alias: propstore
//	  register: Register
//	  getValue: GetValue
//	  setValue: SetValue
//	watch:
//	  interval: 500ms
//	  ignore: ["**/testdata/**"]
//	  addr: localhost:7070
//	cache:
//	  s3:
//	    bucket: ci-propgen
//	    prefix: artifacts/
//	    region: eu-west-1
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Store:", cfg.Store.Import)
package config
