// Package config defines the format-agnostic assembly model: which scopes to
// build, which extensions each scope uses and which wirelet options they
// receive. Concrete loaders, such as the HCL one, live in separate packages.
package config
