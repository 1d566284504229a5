package mimetypes

// Mapping order matters: it is the iteration order of the confidence score
// table, so earlier entries win ties.
var builtinMappings = []Mapping{
	// images
	{MIME: "image/jpeg", Extensions: []string{"jpg", "jpeg", "jpe", "jfif"}},
	{MIME: "image/png", Extensions: []string{"png"}},
	{MIME: "image/gif", Extensions: []string{"gif"}},
	{MIME: "image/tiff", Extensions: []string{"tif", "tiff"}},
	{MIME: "image/x-icon", Extensions: []string{"ico"}},
	{MIME: "image/svg+xml", Extensions: []string{"svg"}},
	{MIME: "image/webp", Extensions: []string{"webp"}},
	{MIME: "image/bmp", Extensions: []string{"bmp"}},

	// documents and archives
	{MIME: "application/pdf", Extensions: []string{"pdf"}},
	{MIME: "application/zip", Extensions: []string{"zip"}},
	{MIME: "application/gzip", Extensions: []string{"gz", "gzip", "tgz"}},
	{MIME: "application/x-bzip2", Extensions: []string{"bz2"}},
	{MIME: "application/x-7z-compressed", Extensions: []string{"7z"}},
	{MIME: "application/vnd.rar", Extensions: []string{"rar"}},
	{MIME: "application/x-xz", Extensions: []string{"xz"}},
	{MIME: "application/x-tar", Extensions: []string{"tar"}},
	{MIME: "application/msword", Extensions: []string{"doc", "dot"}},
	{MIME: "application/vnd.ms-excel", Extensions: []string{"xls"}},
	{MIME: "application/vnd.ms-powerpoint", Extensions: []string{"ppt"}},
	{MIME: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Extensions: []string{"docx"}},
	{MIME: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Extensions: []string{"xlsx"}},
	{MIME: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Extensions: []string{"pptx"}},
	{MIME: "application/vnd.oasis.opendocument.text", Extensions: []string{"odt"}},
	{MIME: "application/x-sqlite3", Extensions: []string{"sqlite", "sqlite3", "db"}},
	{MIME: "application/wasm", Extensions: []string{"wasm"}},
	{MIME: "application/json", Extensions: []string{"json"}},
	{MIME: "application/xml", Extensions: []string{"xml"}},

	// executables and scripts
	{MIME: "application/x-msdownload", Extensions: []string{"exe", "dll", "scr", "sys"}},
	{MIME: "application/x-executable", Extensions: []string{"elf", "so"}},
	{MIME: "application/x-mach-binary", Extensions: []string{"macho", "dylib"}},
	{MIME: "application/javascript", Extensions: []string{"js", "mjs"}},
	{MIME: "application/x-httpd-php", Extensions: []string{"php", "php3", "php4", "php5", "phtml", "phar"}},
	{MIME: "application/x-sh", Extensions: []string{"sh", "bash"}},

	// audio
	{MIME: "audio/mpeg", Extensions: []string{"mp3"}},
	{MIME: "audio/flac", Extensions: []string{"flac"}},
	{MIME: "audio/ogg", Extensions: []string{"ogg", "oga", "opus"}},
	{MIME: "audio/midi", Extensions: []string{"mid", "midi"}},
	{MIME: "audio/wav", Extensions: []string{"wav"}},
	{MIME: "audio/aac", Extensions: []string{"aac"}},

	// video
	{MIME: "video/mp4", Extensions: []string{"mp4", "m4v"}},
	{MIME: "video/quicktime", Extensions: []string{"mov", "qt"}},
	{MIME: "video/3gpp", Extensions: []string{"3gp"}},
	{MIME: "video/webm", Extensions: []string{"webm"}},
	{MIME: "video/x-flv", Extensions: []string{"flv"}},
	{MIME: "video/x-msvideo", Extensions: []string{"avi"}},
	{MIME: "video/mpeg", Extensions: []string{"mpeg", "mpg"}},

	// fonts
	{MIME: "font/woff", Extensions: []string{"woff"}},
	{MIME: "font/woff2", Extensions: []string{"woff2"}},
	{MIME: "font/otf", Extensions: []string{"otf"}},
	{MIME: "font/ttf", Extensions: []string{"ttf"}},

	// text
	{MIME: "text/plain", Extensions: []string{"txt", "text", "log"}},
	{MIME: "text/html", Extensions: []string{"html", "htm"}},
	{MIME: "text/css", Extensions: []string{"css"}},
	{MIME: "text/csv", Extensions: []string{"csv"}},
	{MIME: "text/markdown", Extensions: []string{"md", "markdown"}},
	{MIME: "text/calendar", Extensions: []string{"ics"}},
}
