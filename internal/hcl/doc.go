// Package hcl provides the HCL implementation of config.Loader. It parses
// assembly files, decodes them against the block schema and translates them
// into the format-agnostic config.Model, evaluating wirelet attributes into
// cty values.
//
// An assembly looks like:
//
//	scope "app" {
//	  use = ["startup"]
//
//	  wirelet "settings" {
//	    port = 8080
//	  }
//
//	  scope "worker" {
//	    use = ["logging"]
//	  }
//	}
package hcl
