// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig registers default values on v.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("workers", 0)

	v.SetDefault("window.length", 3.0)
	v.SetDefault("window.overlap", 0.0)
	v.SetDefault("window.speed", 1.0)
	v.SetDefault("window.minlength", 1.0)
	v.SetDefault("window.segmentduration", 600.0)
	v.SetDefault("window.samplerate", 48000)
	v.SetDefault("window.fmin", 0.0)
	v.SetDefault("window.fmax", 15000.0)

	v.SetDefault("inference.modelpath", "")
	v.SetDefault("inference.labelpath", "")
	v.SetDefault("inference.embeddingmodelpath", "")
	v.SetDefault("inference.specieslistpath", "")
	v.SetDefault("inference.codespath", "")
	v.SetDefault("inference.threads", 0)
	v.SetDefault("inference.batchsize", 1)
	v.SetDefault("inference.applysigmoid", true)
	v.SetDefault("inference.sensitivity", 1.0)
	v.SetDefault("inference.minconfidence", 0.25)
	v.SetDefault("inference.topn", 0)

	v.SetDefault("merge.maxconsecutive", 1)

	v.SetDefault("output.types", []string{OutputTable})
	v.SetDefault("output.dir", "")
	v.SetDefault("output.combine", false)
	v.SetDefault("output.skipexisting", false)
	v.SetDefault("output.additionalcolumns", []string{})
	v.SetDefault("output.sampleratehighfreq", false)
	v.SetDefault("output.lat", -1.0)
	v.SetDefault("output.lon", -1.0)
	v.SetDefault("output.week", -1)

	v.SetDefault("embeddings.backend", BackendSQLite)
	v.SetDefault("embeddings.path", "embeddings.db")
	v.SetDefault("embeddings.batchsize", 8)
	v.SetDefault("embeddings.fileoutput", "")
	v.SetDefault("embeddings.metric", "cosine")
	v.SetDefault("embeddings.results", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/analysis.log")
	v.SetDefault("logging.file_output.level", "debug")
}
