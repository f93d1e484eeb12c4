/*
Package atomicfile replaces files so that a crash leaves either the old
content or the new content under the destination name, never a partial
file.

Data goes to a temporary file in the same directory. Close syncs it and
renames it over the destination, then syncs the directory. On any error
the temporary file is removed and the destination is untouched.

	w, err := atomicfile.New(path)
	if err != nil {
		return err
	}
	// a no-op after a successful Close
	defer w.Cancel()
	if _, err = w.Write(data); err != nil {
		return err
	}
	return w.Close()

WriteFile does the above in one call.
*/
package atomicfile
